package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/eduon/notify-gateway/internal/distribution_service/domain"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository"
	"github.com/eduon/notify-gateway/internal/distribution_service/repository/postgres"
	"github.com/eduon/notify-gateway/internal/platform/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration test: needs a PostgreSQL with the dispatch tables applied
// (see migrations/). Set TEST_POSTGRES_DSN to run.
func testPool(t *testing.T) *repositoryPool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping repository integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := database.NewDBPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &repositoryPool{repo: postgres.NewPgReportRepository(pool)}
}

type repositoryPool struct {
	repo repository.ReportRepository
}

func TestPgReportRepository_SaveAndGetLatest(t *testing.T) {
	p := testPool(t)
	ctx := context.Background()
	campaignID := "it-" + uuid.NewString()

	older := &domain.CampaignReport{
		CampaignID:   campaignID,
		TotalCount:   1,
		FailedCount:  1,
		DispatchedAt: time.Now().UTC().Add(-time.Minute),
		Results: []domain.DispatchResult{
			{RecipientID: "s1", Status: domain.StatusFailed, ErrorMessage: "no destination", SentAt: time.Now().UTC().Add(-time.Minute)},
		},
	}
	require.NoError(t, p.repo.Save(ctx, older))

	newer := &domain.CampaignReport{
		CampaignID:    campaignID,
		TotalCount:    2,
		SuccessCount:  1,
		FailedCount:   1,
		MockTransport: true,
		DispatchedAt:  time.Now().UTC(),
		Results: []domain.DispatchResult{
			{RecipientID: "s1", RecipientName: "Kim", Destination: "010-1234-5678", Link: "http://x/solve/a1?token=t", Status: domain.StatusSent, ProviderMessageID: "m1", SentAt: time.Now().UTC()},
			{RecipientID: "s2", Status: domain.StatusFailed, ErrorMessage: "recipient not found", SentAt: time.Now().UTC()},
		},
	}
	require.NoError(t, p.repo.Save(ctx, newer))

	got, err := p.repo.GetLatestByCampaign(ctx, campaignID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID, "latest attempt wins")
	assert.Equal(t, 2, got.TotalCount)
	assert.True(t, got.MockTransport)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "s1", got.Results[0].RecipientID, "results keep submission order")
	assert.Equal(t, domain.StatusFailed, got.Results[1].Status)
	assert.Equal(t, []string{"s2"}, got.FailedRecipientIDs())
}

func TestPgReportRepository_GetLatestNotFound(t *testing.T) {
	p := testPool(t)

	_, err := p.repo.GetLatestByCampaign(context.Background(), "missing-"+uuid.NewString())

	assert.ErrorIs(t, err, repository.ErrReportNotFound)
}
