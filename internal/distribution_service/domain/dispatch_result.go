package domain

import (
	"time"
)

// DispatchStatus is the per-recipient outcome of one dispatch attempt.
type DispatchStatus string

const (
	StatusSent      DispatchStatus = "sent"
	StatusFailed    DispatchStatus = "failed"
	StatusScheduled DispatchStatus = "scheduled"
)

// DispatchResult is one recipient's outcome for one dispatch attempt.
// Created once per recipient per attempt; immutable.
type DispatchResult struct {
	RecipientID       string         `json:"recipient_id"`
	RecipientName     string         `json:"recipient_name,omitempty"`
	Destination       string         `json:"destination,omitempty"`
	Link              string         `json:"link,omitempty"`
	Status            DispatchStatus `json:"status"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	SentAt            time.Time      `json:"sent_at"`
}

// CampaignReport aggregates all DispatchResults of one campaign attempt.
type CampaignReport struct {
	ID             string           `json:"id"` // UUID
	CampaignID     string           `json:"campaign_id"`
	TotalCount     int              `json:"total_count"`
	SuccessCount   int              `json:"success_count"`
	FailedCount    int              `json:"failed_count"`
	ScheduledCount int              `json:"scheduled_count"`
	Results        []DispatchResult `json:"results"`
	MockTransport  bool             `json:"mock_transport"` // True when the active transport never networks
	DispatchedAt   time.Time        `json:"dispatched_at"`
}

// Success reports whether the attempt counts as successful overall.
// Partial success is still progress: one delivered message makes the
// campaign successful even amid failures. Callers deciding whether to
// surface an error must account for this.
func (r *CampaignReport) Success() bool {
	return r.FailedCount == 0 || r.SuccessCount > 0
}

// FailedRecipientIDs returns the recipient ids whose result is failed,
// in result order. Sent and scheduled recipients are excluded so a retry
// never re-sends to them.
func (r *CampaignReport) FailedRecipientIDs() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			ids = append(ids, res.RecipientID)
		}
	}
	return ids
}
