package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgReportRepository struct {
	db *pgxpool.Pool
}

// NewPgReportRepository creates a PostgreSQL-backed ReportRepository.
func NewPgReportRepository(db *pgxpool.Pool) repository.ReportRepository {
	return &pgReportRepository{db: db}
}

// Save stores the report and its per-recipient results in one transaction
// so a retry never observes a half-written attempt.
func (r *pgReportRepository) Save(ctx context.Context, report *domain.CampaignReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO dispatch_reports (
				id, campaign_id, total_count, success_count, failed_count,
				scheduled_count, mock_transport, dispatched_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.Exec(ctx, query,
			report.ID, report.CampaignID, report.TotalCount, report.SuccessCount,
			report.FailedCount, report.ScheduledCount, report.MockTransport, report.DispatchedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert dispatch report: %w", err)
		}

		resultQuery := `
			INSERT INTO dispatch_results (
				report_id, position, recipient_id, recipient_name, destination,
				link, status, provider_message_id, error_message, sent_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		for i, res := range report.Results {
			_, err := tx.Exec(ctx, resultQuery,
				report.ID, i, res.RecipientID, res.RecipientName, res.Destination,
				res.Link, string(res.Status), res.ProviderMessageID, res.ErrorMessage, res.SentAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert dispatch result for recipient %s: %w", res.RecipientID, err)
			}
		}
		return nil
	})
}

// GetLatestByCampaign returns the most recent report for campaignID with
// its results in original submission order.
func (r *pgReportRepository) GetLatestByCampaign(ctx context.Context, campaignID string) (*domain.CampaignReport, error) {
	report := &domain.CampaignReport{}
	query := `
		SELECT id, campaign_id, total_count, success_count, failed_count,
		       scheduled_count, mock_transport, dispatched_at
		FROM dispatch_reports
		WHERE campaign_id = $1
		ORDER BY dispatched_at DESC
		LIMIT 1
	`
	err := r.db.QueryRow(ctx, query, campaignID).Scan(
		&report.ID, &report.CampaignID, &report.TotalCount, &report.SuccessCount,
		&report.FailedCount, &report.ScheduledCount, &report.MockTransport, &report.DispatchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to query dispatch report: %w", err)
	}

	resultQuery := `
		SELECT recipient_id, recipient_name, destination, link, status,
		       provider_message_id, error_message, sent_at
		FROM dispatch_results
		WHERE report_id = $1
		ORDER BY position ASC
	`
	rows, err := r.db.Query(ctx, resultQuery, report.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var res domain.DispatchResult
		var status string
		if err := rows.Scan(
			&res.RecipientID, &res.RecipientName, &res.Destination, &res.Link,
			&status, &res.ProviderMessageID, &res.ErrorMessage, &res.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch result: %w", err)
		}
		res.Status = domain.DispatchStatus(status)
		report.Results = append(report.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dispatch results: %w", err)
	}

	return report, nil
}
