package http

import (
	"time"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
)

// DispatchCampaignRequest is the payload for dispatching a campaign. The
// caller (the academy application's CRUD layer) supplies the roster and
// campaign metadata; this service owns nothing but the pipeline.
type DispatchCampaignRequest struct {
	MessageTemplate string              `json:"message_template" validate:"required"`
	ScheduledAt     *time.Time          `json:"scheduled_at,omitempty"`
	RecipientIDs    []string            `json:"recipient_ids" validate:"required,min=1,dive,required"`
	Recipients      []RecipientPayload  `json:"recipients" validate:"required,min=1,dive"`
	Info            CampaignInfoPayload `json:"info"`
}

// RetryCampaignRequest re-supplies campaign context for a retry. The set
// of recipients to retry comes from the persisted report, not the body.
type RetryCampaignRequest struct {
	MessageTemplate string              `json:"message_template" validate:"required"`
	Recipients      []RecipientPayload  `json:"recipients" validate:"required,min=1,dive"`
	Info            CampaignInfoPayload `json:"info"`
}

// RecipientPayload is one roster entry as sent over the wire.
type RecipientPayload struct {
	ID           string            `json:"id" validate:"required"`
	Name         string            `json:"name"`
	Destination  string            `json:"destination"`
	TemplateVars map[string]string `json:"template_vars,omitempty"`
}

// CampaignInfoPayload carries template-facing campaign metadata.
type CampaignInfoPayload struct {
	Title   string `json:"title"`
	DueDate string `json:"due_date,omitempty"`
}

// VerifyAccessResponse is the outcome of an access-link token check.
type VerifyAccessResponse struct {
	Valid bool `json:"valid"`
}

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (p RecipientPayload) toDomain() domain.Recipient {
	return domain.Recipient{
		ID:           p.ID,
		Name:         p.Name,
		Destination:  p.Destination,
		TemplateVars: p.TemplateVars,
	}
}

func toRoster(payloads []RecipientPayload) domain.Roster {
	recipients := make([]domain.Recipient, len(payloads))
	for i, p := range payloads {
		recipients[i] = p.toDomain()
	}
	return domain.NewRoster(recipients)
}

func (p CampaignInfoPayload) toDomain() domain.CampaignInfo {
	return domain.CampaignInfo{Title: p.Title, DueDate: p.DueDate}
}
