package repository

import (
	"context"
	"errors"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
)

// ErrReportNotFound is returned when a campaign has no persisted report.
var ErrReportNotFound = errors.New("campaign report not found")

// ReportRepository persists campaign reports so a later retry pass can
// target exactly the recipients that failed.
type ReportRepository interface {
	// Save stores a report and all of its per-recipient results.
	Save(ctx context.Context, report *domain.CampaignReport) error

	// GetLatestByCampaign returns the most recent report for a campaign,
	// or ErrReportNotFound.
	GetLatestByCampaign(ctx context.Context, campaignID string) (*domain.CampaignReport, error)
}
