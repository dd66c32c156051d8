package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	"github.com/eduon/notify-gateway/internal/distribution_service/token"
)

// DistributionEngine is the slice of the engine the HTTP layer needs.
type DistributionEngine interface {
	Distribute(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport
	DistributeBulk(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport
	RetryFailed(ctx context.Context, previous *domain.CampaignReport, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport
}

// TokenVerifier re-derives access tokens for link verification.
type TokenVerifier interface {
	Verify(tok, campaignID, recipientID string) bool
}

var _ TokenVerifier = (*token.Generator)(nil)

type DispatchHandler struct {
	engine   DistributionEngine
	reports  repository.ReportRepository // may be nil
	verifier TokenVerifier
	validate *validator.Validate
	logger   *slog.Logger
}

func NewDispatchHandler(
	engine DistributionEngine,
	reports repository.ReportRepository,
	verifier TokenVerifier,
	logger *slog.Logger,
) *DispatchHandler {
	return &DispatchHandler{
		engine:   engine,
		reports:  reports,
		verifier: verifier,
		validate: validator.New(),
		logger:   logger.With("handler", "dispatch"),
	}
}

// RegisterRoutes registers campaign routes with the given router.
func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/campaigns/{campaignID}/dispatch", h.handleDispatch)
	r.Post("/campaigns/{campaignID}/retry", h.handleRetry)
}

// RegisterAccessRoutes registers the link-landing verification route.
func (h *DispatchHandler) RegisterAccessRoutes(r chi.Router) {
	r.Get("/access/{resource}/{campaignID}/verify", h.handleVerifyAccess)
}

func (h *DispatchHandler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	campaignID := chi.URLParam(r, "campaignID")

	var req DispatchCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode dispatch request", "campaign_id", campaignID, "error", err)
		h.jsonError(w, "Invalid request payload: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "Dispatch request failed validation", "campaign_id", campaignID, "error", err)
		h.jsonError(w, "Validation failed: "+err.Error(), "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}

	campaign := domain.Campaign{
		ID:              campaignID,
		MessageTemplate: req.MessageTemplate,
		ScheduledAt:     req.ScheduledAt,
		RecipientIDs:    req.RecipientIDs,
	}
	roster := toRoster(req.Recipients)

	logger.InfoContext(ctx, "Dispatching campaign",
		"campaign_id", campaignID, "recipient_count", len(req.RecipientIDs))

	var report *domain.CampaignReport
	if len(req.RecipientIDs) == 1 {
		report = h.engine.Distribute(ctx, campaign, roster, req.Info.toDomain())
	} else {
		report = h.engine.DistributeBulk(ctx, campaign, roster, req.Info.toDomain())
	}

	h.respondJSON(w, http.StatusOK, report)
}

func (h *DispatchHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	campaignID := chi.URLParam(r, "campaignID")

	if h.reports == nil {
		h.jsonError(w, "Retry requires report persistence, which is not configured", "PERSISTENCE_DISABLED", http.StatusServiceUnavailable)
		return
	}

	var req RetryCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode retry request", "campaign_id", campaignID, "error", err)
		h.jsonError(w, "Invalid request payload: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		logger.WarnContext(ctx, "Retry request failed validation", "campaign_id", campaignID, "error", err)
		h.jsonError(w, "Validation failed: "+err.Error(), "VALIDATION_FAILED", http.StatusBadRequest)
		return
	}

	previous, err := h.reports.GetLatestByCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrReportNotFound) {
			h.jsonError(w, "No dispatch report found for campaign", "REPORT_NOT_FOUND", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "Failed to load campaign report", "campaign_id", campaignID, "error", err)
		h.jsonError(w, "Failed to load previous dispatch report", "INTERNAL", http.StatusInternalServerError)
		return
	}

	campaign := domain.Campaign{
		ID:              campaignID,
		MessageTemplate: req.MessageTemplate,
	}
	logger.InfoContext(ctx, "Retrying failed recipients",
		"campaign_id", campaignID, "previous_failed", previous.FailedCount)

	report := h.engine.RetryFailed(ctx, previous, campaign, toRoster(req.Recipients), req.Info.toDomain())
	h.respondJSON(w, http.StatusOK, report)
}

func (h *DispatchHandler) handleVerifyAccess(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	tok := r.URL.Query().Get("token")
	recipientID := r.URL.Query().Get("recipientId")

	if tok == "" || recipientID == "" {
		h.jsonError(w, "token and recipientId query parameters are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	h.respondJSON(w, http.StatusOK, VerifyAccessResponse{
		Valid: h.verifier.Verify(tok, campaignID, recipientID),
	})
}

func (h *DispatchHandler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response body", "error", err)
	}
}

func (h *DispatchHandler) jsonError(w http.ResponseWriter, message, code string, status int) {
	h.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
