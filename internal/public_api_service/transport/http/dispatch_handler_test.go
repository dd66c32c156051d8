package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	"github.com/eduon/notify-gateway/internal/distribution_service/token"
	"github.com/eduon/notify-gateway/internal/public_api_service/middleware"
	"github.com/eduon/notify-gateway/internal/ratelimit"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Distribute(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	args := m.Called(ctx, campaign, roster, info)
	return args.Get(0).(*domain.CampaignReport)
}

func (m *mockEngine) DistributeBulk(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	args := m.Called(ctx, campaign, roster, info)
	return args.Get(0).(*domain.CampaignReport)
}

func (m *mockEngine) RetryFailed(ctx context.Context, previous *domain.CampaignReport, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	args := m.Called(ctx, previous, campaign, roster, info)
	return args.Get(0).(*domain.CampaignReport)
}

type mockReportRepo struct {
	mock.Mock
}

func (m *mockReportRepo) Save(ctx context.Context, report *domain.CampaignReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *mockReportRepo) GetLatestByCampaign(ctx context.Context, campaignID string) (*domain.CampaignReport, error) {
	args := m.Called(ctx, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CampaignReport), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(h *DispatchHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
		h.RegisterAccessRoutes(r)
	})
	return r
}

func dispatchBody(t *testing.T, recipientIDs []string) *bytes.Buffer {
	t.Helper()
	recipients := make([]RecipientPayload, len(recipientIDs))
	for i, id := range recipientIDs {
		recipients[i] = RecipientPayload{ID: id, Name: "Student " + id, Destination: "010-1234-5678"}
	}
	body, err := json.Marshal(DispatchCampaignRequest{
		MessageTemplate: "{studentName}: {solveLink}",
		RecipientIDs:    recipientIDs,
		Recipients:      recipients,
		Info:            CampaignInfoPayload{Title: "Quadratics"},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestHandleDispatch_BulkForMultipleRecipients(t *testing.T) {
	engine := new(mockEngine)
	report := &domain.CampaignReport{ID: "rep-1", CampaignID: "c-1", TotalCount: 2, SuccessCount: 2}
	engine.On("DistributeBulk", mock.Anything, mock.MatchedBy(func(c domain.Campaign) bool {
		return c.ID == "c-1" && len(c.RecipientIDs) == 2
	}), mock.Anything, mock.Anything).Return(report).Once()

	handler := NewDispatchHandler(engine, nil, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/dispatch", dispatchBody(t, []string{"r1", "r2"}))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.CampaignReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "rep-1", got.ID)
	assert.Equal(t, 2, got.SuccessCount)
	engine.AssertExpectations(t)
}

func TestHandleDispatch_SingleRecipientUsesSequentialPath(t *testing.T) {
	engine := new(mockEngine)
	report := &domain.CampaignReport{ID: "rep-2", CampaignID: "c-1", TotalCount: 1, SuccessCount: 1}
	engine.On("Distribute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(report).Once()

	handler := NewDispatchHandler(engine, nil, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/dispatch", dispatchBody(t, []string{"r1"}))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	engine.AssertNotCalled(t, "DistributeBulk", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	engine.AssertExpectations(t)
}

func TestHandleDispatch_RejectsInvalidPayload(t *testing.T) {
	engine := new(mockEngine)
	handler := NewDispatchHandler(engine, nil, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	testCases := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: "{not json", code: "BAD_REQUEST"},
		{name: "missing template", body: `{"recipient_ids":["r1"],"recipients":[{"id":"r1"}]}`, code: "VALIDATION_FAILED"},
		{name: "empty recipients", body: `{"message_template":"hi","recipient_ids":[],"recipients":[]}`, code: "VALIDATION_FAILED"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/dispatch", bytes.NewBufferString(tc.body))
			router.ServeHTTP(rr, req)

			require.Equal(t, http.StatusBadRequest, rr.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Code)
		})
	}
	engine.AssertNotCalled(t, "Distribute", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "DistributeBulk", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRetry_UsesLatestReport(t *testing.T) {
	engine := new(mockEngine)
	repo := new(mockReportRepo)

	previous := &domain.CampaignReport{
		ID: "rep-old", CampaignID: "c-9", TotalCount: 2, SuccessCount: 1, FailedCount: 1,
		Results: []domain.DispatchResult{
			{RecipientID: "r1", Status: domain.StatusSent},
			{RecipientID: "r2", Status: domain.StatusFailed},
		},
	}
	retried := &domain.CampaignReport{ID: "rep-new", CampaignID: "c-9", TotalCount: 1, SuccessCount: 1}

	repo.On("GetLatestByCampaign", mock.Anything, "c-9").Return(previous, nil).Once()
	engine.On("RetryFailed", mock.Anything, previous, mock.MatchedBy(func(c domain.Campaign) bool {
		return c.ID == "c-9"
	}), mock.Anything, mock.Anything).Return(retried).Once()

	handler := NewDispatchHandler(engine, repo, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	body := `{"message_template":"retrying {studentName}","recipients":[{"id":"r2","name":"Lee","destination":"010-2222-3333"}]}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-9/retry", bytes.NewBufferString(body))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got domain.CampaignReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "rep-new", got.ID)
	engine.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestHandleRetry_NoReportIs404(t *testing.T) {
	engine := new(mockEngine)
	repo := new(mockReportRepo)
	repo.On("GetLatestByCampaign", mock.Anything, "c-absent").Return(nil, repository.ErrReportNotFound).Once()

	handler := NewDispatchHandler(engine, repo, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	body := `{"message_template":"hi","recipients":[{"id":"r1"}]}`
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-absent/retry", bytes.NewBufferString(body))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "REPORT_NOT_FOUND", resp.Code)
	engine.AssertNotCalled(t, "RetryFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRetry_PersistenceDisabledIs503(t *testing.T) {
	handler := NewDispatchHandler(new(mockEngine), nil, token.NewGenerator("s"), testLogger())
	router := newTestRouter(handler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/retry", bytes.NewBufferString(`{}`))
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHandleVerifyAccess(t *testing.T) {
	gen := token.NewGenerator("verify-salt")
	handler := NewDispatchHandler(new(mockEngine), nil, gen, testLogger())
	router := newTestRouter(handler)

	valid := gen.Generate("c-5", "r-8")

	testCases := []struct {
		name       string
		url        string
		wantStatus int
		wantValid  bool
	}{
		{name: "valid token", url: "/api/v1/access/solve/c-5/verify?token=" + valid + "&recipientId=r-8", wantStatus: http.StatusOK, wantValid: true},
		{name: "wrong recipient", url: "/api/v1/access/solve/c-5/verify?token=" + valid + "&recipientId=r-9", wantStatus: http.StatusOK, wantValid: false},
		{name: "wrong campaign", url: "/api/v1/access/solve/c-6/verify?token=" + valid + "&recipientId=r-8", wantStatus: http.StatusOK, wantValid: false},
		{name: "missing token", url: "/api/v1/access/solve/c-5/verify?recipientId=r-8", wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.url, nil))

			require.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				var resp VerifyAccessResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tc.wantValid, resp.Valid)
			}
		})
	}
}

func TestDispatchRoute_RateLimited429(t *testing.T) {
	engine := new(mockEngine)
	report := &domain.CampaignReport{ID: "rep-1", CampaignID: "c-1", TotalCount: 1, SuccessCount: 1}
	engine.On("Distribute", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(report)

	handler := NewDispatchHandler(engine, nil, token.NewGenerator("s"), testLogger())
	store := ratelimit.NewStore()
	cfg := ratelimit.Config{Window: time.Minute, MaxRequests: 1, Message: "Too many dispatch requests. Please try again later."}

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimitMiddleware(store, "test", cfg)).Post("/campaigns/{campaignID}/dispatch", handler.handleDispatch)
	})

	send := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c-1/dispatch", dispatchBody(t, []string{"r1"}))
		req.RemoteAddr = "203.0.113.50:9999"
		router.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, send().Code)

	limited := send()
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, "1", limited.Header().Get("X-RateLimit-Limit"))

	var resp struct {
		Error      string `json:"error"`
		Code       string `json:"code"`
		RetryAfter int    `json:"retryAfter"`
	}
	require.NoError(t, json.Unmarshal(limited.Body.Bytes(), &resp))
	assert.Equal(t, "RATE_LIMITED", resp.Code)
	assert.Greater(t, resp.RetryAfter, 0)
}
