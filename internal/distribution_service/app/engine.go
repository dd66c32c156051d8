package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
	"github.com/eduon/notify-gateway/internal/distribution_service/provider"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	"github.com/eduon/notify-gateway/internal/distribution_service/token"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultConcurrency caps simultaneous outbound sends per chunk.
const DefaultConcurrency = 5

// NATS subjects for campaign lifecycle events.
const (
	SubjectReportCreated     = "campaign.report.created"
	SubjectCampaignScheduled = "campaign.scheduled"
)

// Publisher is the event sink for campaign lifecycle events. A nil
// publisher disables event publication.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Options configures an Engine.
type Options struct {
	// LinkBaseURL and LinkResource form recipient access links:
	// <LinkBaseURL>/<LinkResource>/<campaignID>?token=...
	LinkBaseURL  string
	LinkResource string

	// SendTimeout bounds each transport call so one hung send cannot
	// stall a whole batch. Zero means no per-send timeout.
	SendTimeout time.Duration

	// Concurrency is the chunk size for DistributeBulk. Zero or negative
	// falls back to DefaultConcurrency.
	Concurrency int
}

// Engine orchestrates campaign distribution: per-recipient access links,
// message templating, bounded-concurrency dispatch, result aggregation and
// retry of failures. It holds no mutable state of its own and is safe for
// concurrent use.
type Engine struct {
	gateway   *provider.Gateway
	tokens    *token.Generator
	reports   repository.ReportRepository // may be nil
	publisher Publisher                   // may be nil
	logger    *slog.Logger
	opts      Options
	now       func() time.Time
}

// NewEngine creates an Engine. reports and publisher may be nil to disable
// persistence and event publication respectively.
func NewEngine(
	gateway *provider.Gateway,
	tokens *token.Generator,
	reports repository.ReportRepository,
	publisher Publisher,
	logger *slog.Logger,
	opts Options,
) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Engine{
		gateway:   gateway,
		tokens:    tokens,
		reports:   reports,
		publisher: publisher,
		logger:    logger.With("component", "distribution_engine"),
		opts:      opts,
		now:       time.Now,
	}
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// renderTemplate substitutes {name} placeholders from vars. Missing
// values render as empty string rather than failing the message.
func renderTemplate(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
}

// Distribute dispatches a campaign to every recipient id it names,
// sequentially, and returns the aggregate report. Recipient-level problems
// (unknown id, missing destination, provider failure) become failed
// results; Distribute itself only observes ctx cancellation.
func (e *Engine) Distribute(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	timer := prometheus.NewTimer(campaignDispatchDurationHist.WithLabelValues("single"))
	defer timer.ObserveDuration()

	results := make([]domain.DispatchResult, len(campaign.RecipientIDs))
	for i, id := range campaign.RecipientIDs {
		results[i] = e.dispatchOne(ctx, campaign, roster, info, id)
	}
	return e.finishReport(ctx, campaign, results)
}

// DistributeBulk dispatches like Distribute but processes recipient ids in
// fixed-size chunks: recipients within a chunk go out concurrently, chunks
// run strictly one after another. The barrier between chunks caps
// simultaneous transport calls at the configured concurrency regardless of
// recipient count. Results keep submission order.
func (e *Engine) DistributeBulk(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	timer := prometheus.NewTimer(campaignDispatchDurationHist.WithLabelValues("bulk"))
	defer timer.ObserveDuration()

	ids := campaign.RecipientIDs
	results := make([]domain.DispatchResult, len(ids))

	chunkSize := e.opts.Concurrency
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = e.dispatchOne(ctx, campaign, roster, info, ids[i])
			}(i)
		}
		// No chunk N+1 work starts before chunk N fully completes.
		wg.Wait()
	}

	return e.finishReport(ctx, campaign, results)
}

// RetryFailed re-dispatches exactly the recipients whose previous result
// was failed. Sent and scheduled recipients are never re-sent. The retry
// is a deliberate one-shot pass; there is no automatic backoff.
func (e *Engine) RetryFailed(ctx context.Context, previous *domain.CampaignReport, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo) *domain.CampaignReport {
	timer := prometheus.NewTimer(campaignDispatchDurationHist.WithLabelValues("retry"))
	defer timer.ObserveDuration()

	failedIDs := previous.FailedRecipientIDs()
	e.logger.InfoContext(ctx, "Retrying failed recipients",
		"campaign_id", campaign.ID,
		"failed_count", len(failedIDs),
		"previous_total", previous.TotalCount)

	retryCampaign := campaign
	retryCampaign.RecipientIDs = failedIDs

	results := make([]domain.DispatchResult, len(failedIDs))
	for i, id := range failedIDs {
		results[i] = e.dispatchOne(ctx, retryCampaign, roster, info, id)
	}
	return e.finishReport(ctx, retryCampaign, results)
}

// dispatchOne produces the DispatchResult for a single recipient id.
func (e *Engine) dispatchOne(ctx context.Context, campaign domain.Campaign, roster domain.Roster, info domain.CampaignInfo, recipientID string) domain.DispatchResult {
	now := e.now()

	recipient, ok := roster[recipientID]
	if !ok {
		dispatchResultsCounter.WithLabelValues(string(domain.StatusFailed)).Inc()
		return domain.DispatchResult{
			RecipientID:  recipientID,
			Status:       domain.StatusFailed,
			ErrorMessage: "recipient not found",
			SentAt:       now,
		}
	}
	if recipient.Destination == "" {
		dispatchResultsCounter.WithLabelValues(string(domain.StatusFailed)).Inc()
		return domain.DispatchResult{
			RecipientID:   recipientID,
			RecipientName: recipient.Name,
			Status:        domain.StatusFailed,
			ErrorMessage:  "no destination",
			SentAt:        now,
		}
	}

	link := e.tokens.Link(e.opts.LinkBaseURL, e.opts.LinkResource, campaign.ID, recipientID)
	message := renderTemplate(campaign.MessageTemplate, e.templateVars(recipient, info, link))

	result := domain.DispatchResult{
		RecipientID:   recipientID,
		RecipientName: recipient.Name,
		Destination:   recipient.Destination,
		Link:          link,
		SentAt:        now,
	}

	// Scheduled campaigns only record intent; the external scheduler
	// performs the actual send later.
	if campaign.ScheduledAt != nil && campaign.ScheduledAt.After(now) {
		result.Status = domain.StatusScheduled
		dispatchResultsCounter.WithLabelValues(string(domain.StatusScheduled)).Inc()
		return result
	}

	sendCtx := ctx
	if e.opts.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.opts.SendTimeout)
		defer cancel()
	}

	outcome := e.gateway.Send(sendCtx, recipient.Destination, message, "")
	if outcome.Success {
		result.Status = domain.StatusSent
		result.ProviderMessageID = outcome.MessageID
	} else {
		result.Status = domain.StatusFailed
		result.ErrorMessage = outcome.ErrorMessage
		if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			result.ErrorMessage = fmt.Sprintf("send timed out after %s", e.opts.SendTimeout)
		}
		if result.ErrorMessage == "" {
			result.ErrorMessage = "message dispatch failed"
		}
	}
	dispatchResultsCounter.WithLabelValues(string(result.Status)).Inc()
	return result
}

// templateVars assembles the substitution map for one recipient. Later
// sources win: campaign info, then the recipient's own vars.
func (e *Engine) templateVars(recipient domain.Recipient, info domain.CampaignInfo, link string) map[string]string {
	vars := map[string]string{
		"studentName":     recipient.Name,
		"assignmentTitle": info.Title,
		"dueDate":         info.DueDate,
		"solveLink":       link,
	}
	for k, v := range recipient.TemplateVars {
		vars[k] = v
	}
	return vars
}

// finishReport aggregates results, persists the report when a repository
// is configured, and publishes lifecycle events when a publisher is.
// Persistence and publish failures are logged, never propagated: the
// report is already complete and partial failure must not look like a
// dispatch error to the caller.
func (e *Engine) finishReport(ctx context.Context, campaign domain.Campaign, results []domain.DispatchResult) *domain.CampaignReport {
	report := &domain.CampaignReport{
		ID:            uuid.NewString(),
		CampaignID:    campaign.ID,
		TotalCount:    len(results),
		Results:       results,
		MockTransport: e.gateway.MockActive(),
		DispatchedAt:  e.now(),
	}
	for _, r := range results {
		switch r.Status {
		case domain.StatusSent:
			report.SuccessCount++
		case domain.StatusFailed:
			report.FailedCount++
		case domain.StatusScheduled:
			report.ScheduledCount++
		}
	}

	e.logger.InfoContext(ctx, "Campaign dispatch finished",
		"campaign_id", report.CampaignID,
		"total", report.TotalCount,
		"sent", report.SuccessCount,
		"failed", report.FailedCount,
		"scheduled", report.ScheduledCount,
		"mock_transport", report.MockTransport)

	if e.reports != nil {
		if err := e.reports.Save(ctx, report); err != nil {
			e.logger.ErrorContext(ctx, "Failed to persist campaign report",
				"campaign_id", report.CampaignID, "report_id", report.ID, "error", err)
		}
	}

	e.publishEvents(ctx, campaign, report)
	return report
}

func (e *Engine) publishEvents(ctx context.Context, campaign domain.Campaign, report *domain.CampaignReport) {
	if e.publisher == nil {
		return
	}

	if data, err := json.Marshal(report); err == nil {
		if err := e.publisher.Publish(ctx, SubjectReportCreated, data); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish report event",
				"campaign_id", report.CampaignID, "error", err)
		}
	}

	if report.ScheduledCount > 0 && campaign.ScheduledAt != nil {
		event := struct {
			CampaignID   string    `json:"campaign_id"`
			ScheduledAt  time.Time `json:"scheduled_at"`
			RecipientIDs []string  `json:"recipient_ids"`
		}{
			CampaignID:   campaign.ID,
			ScheduledAt:  *campaign.ScheduledAt,
			RecipientIDs: campaign.RecipientIDs,
		}
		if data, err := json.Marshal(event); err == nil {
			if err := e.publisher.Publish(ctx, SubjectCampaignScheduled, data); err != nil {
				e.logger.WarnContext(ctx, "Failed to publish scheduled-campaign event",
					"campaign_id", campaign.ID, "error", err)
			}
		}
	}
}
