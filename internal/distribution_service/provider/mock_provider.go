package provider

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// MockProvider simulates a message transport without touching the network:
// a small random latency, success almost always, and a low fixed failure
// probability so integration tests and local development exercise the
// failure path without live credentials.
type MockProvider struct {
	logger   *slog.Logger
	failRate float64
	minDelay time.Duration
	maxDelay time.Duration
}

// NewMockProvider creates a MockProvider. failRate is the simulated
// failure probability in [0,1].
func NewMockProvider(logger *slog.Logger, failRate float64) *MockProvider {
	return &MockProvider{
		logger:   logger.With("provider", ProviderMock),
		failRate: failRate,
		minDelay: 20 * time.Millisecond,
		maxDelay: 80 * time.Millisecond,
	}
}

func (p *MockProvider) GetName() string {
	return ProviderMock
}

// Send simulates one send.
func (p *MockProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()

	// Top-level rand is internally locked; sends run concurrently against
	// one provider instance, so per-instance rand state would race.
	delay := p.minDelay + time.Duration(rand.Int63n(int64(p.maxDelay-p.minDelay)+1))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if rand.Float64() < p.failRate {
		p.logger.WarnContext(ctx, "Mock provider simulated send failure",
			"internal_message_id", details.InternalMessageID,
			"recipient", details.Recipient)
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_MOCK",
			ErrorMessage:   "mock provider simulated send failure",
		}, nil
	}

	providerMsgID := "mock-" + uuid.NewString()
	p.logger.InfoContext(ctx, "Mock provider send succeeded (simulated)",
		"internal_message_id", details.InternalMessageID,
		"recipient", details.Recipient,
		"provider_message_id", providerMsgID)

	return &SendResponseDetails{
		ProviderMessageID: providerMsgID,
		IsSuccess:         true,
		ProviderStatus:    "SENT_MOCK_OK",
	}, nil
}
