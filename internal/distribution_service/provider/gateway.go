package provider

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"unicode/utf8"
)

// maxMessageLength is the longest message accepted for dispatch. Over-length
// messages are rejected locally before consuming provider quota.
const maxMessageLength = 2000

// Korean destination shapes: mobile (010/011/016/017/018/019) and
// landline (area code 02 or 0XX), with or without hyphens.
var (
	mobilePattern   = regexp.MustCompile(`^01[016789]-?\d{3,4}-?\d{4}$`)
	landlinePattern = regexp.MustCompile(`^0\d{1,2}-?\d{3,4}-?\d{4}$`)
)

// ValidDestination reports whether destination looks like a deliverable
// phone number for the supported locale.
func ValidDestination(destination string) bool {
	return mobilePattern.MatchString(destination) || landlinePattern.MatchString(destination)
}

// SendOutcome is the gateway-level result of one send: the provider's
// normalized response, or a local rejection that never reached the network.
type SendOutcome struct {
	Success      bool
	MessageID    string
	Status       string
	ErrorMessage string
	ProviderName string
}

// BulkSendResult aggregates a SendBulk call. Results carries one entry per
// unique destination.
type BulkSendResult struct {
	Total        int
	SuccessCount int
	FailedCount  int
	Results      []BulkRecipientResult
}

// BulkRecipientResult pairs a destination with its outcome.
type BulkRecipientResult struct {
	Destination string
	Outcome     SendOutcome
}

// Gateway fronts the configured providers: it validates destinations and
// messages locally, picks a provider per send, and normalizes results.
// Provider configuration is read-only after construction, so a Gateway is
// safe for concurrent use.
type Gateway struct {
	logger      *slog.Logger
	providers   map[string]Provider
	defaultName string
}

// NewGateway creates a Gateway over the given providers. defaultName must
// be a key of providers; selection falls back to the mock provider when a
// requested name is unknown only if a "mock" provider is registered.
func NewGateway(logger *slog.Logger, providers map[string]Provider, defaultName string) (*Gateway, error) {
	if _, ok := providers[defaultName]; !ok {
		return nil, fmt.Errorf("default provider %q not registered", defaultName)
	}
	return &Gateway{
		logger:      logger.With("component", "transport_gateway"),
		providers:   providers,
		defaultName: defaultName,
	}, nil
}

// DefaultProviderName returns the provider used when no explicit name is given.
func (g *Gateway) DefaultProviderName() string {
	return g.defaultName
}

// MockActive reports whether the default transport is the non-production mock.
func (g *Gateway) MockActive() bool {
	return g.defaultName == ProviderMock
}

// selectProvider resolves a provider: explicit name wins, else the
// configured default.
func (g *Gateway) selectProvider(name string) (Provider, error) {
	if name == "" {
		name = g.defaultName
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// Send validates locally, then delegates one message to the selected
// provider. providerName may be empty to use the default. Provider and
// network errors are captured in the outcome, never raised, so a bulk
// caller can treat every send uniformly.
func (g *Gateway) Send(ctx context.Context, destination, message, providerName string) SendOutcome {
	if message == "" {
		providerSendsCounter.WithLabelValues("none", "rejected_local").Inc()
		return SendOutcome{Success: false, Status: "REJECTED_EMPTY_MESSAGE", ErrorMessage: "message is empty"}
	}
	if utf8.RuneCountInString(message) > maxMessageLength {
		providerSendsCounter.WithLabelValues("none", "rejected_local").Inc()
		return SendOutcome{Success: false, Status: "REJECTED_MESSAGE_TOO_LONG",
			ErrorMessage: fmt.Sprintf("message exceeds %d characters", maxMessageLength)}
	}
	if !ValidDestination(destination) {
		providerSendsCounter.WithLabelValues("none", "rejected_local").Inc()
		return SendOutcome{Success: false, Status: "REJECTED_BAD_DESTINATION",
			ErrorMessage: fmt.Sprintf("invalid destination %q", destination)}
	}

	p, err := g.selectProvider(providerName)
	if err != nil {
		providerSendsCounter.WithLabelValues("none", "rejected_local").Inc()
		return SendOutcome{Success: false, Status: "REJECTED_UNKNOWN_PROVIDER", ErrorMessage: err.Error()}
	}

	resp, err := p.Send(ctx, SendRequestDetails{Recipient: destination, Content: message})
	if err != nil {
		g.logger.ErrorContext(ctx, "Provider send failed",
			"provider", p.GetName(), "destination", destination, "error", err)
		providerSendsCounter.WithLabelValues(p.GetName(), "failed").Inc()
		return SendOutcome{Success: false, Status: "FAILED_PROVIDER_ERROR",
			ErrorMessage: err.Error(), ProviderName: p.GetName()}
	}

	outcome := SendOutcome{
		Success:      resp.IsSuccess,
		MessageID:    resp.ProviderMessageID,
		Status:       resp.ProviderStatus,
		ErrorMessage: resp.ErrorMessage,
		ProviderName: p.GetName(),
	}
	if outcome.Success {
		providerSendsCounter.WithLabelValues(p.GetName(), "success").Inc()
	} else {
		providerSendsCounter.WithLabelValues(p.GetName(), "failed").Inc()
		if outcome.ErrorMessage == "" {
			outcome.ErrorMessage = "provider rejected the message"
		}
	}
	return outcome
}

// SendBulk sends messageFn(destination) to every unique destination
// concurrently. Duplicate destinations are collapsed before sending so the
// same address is never messaged twice in one call, even when it appears
// multiple times in the input. A recipient's failure never aborts the batch.
func (g *Gateway) SendBulk(ctx context.Context, destinations []string, messageFn func(destination string) string, providerName string) BulkSendResult {
	unique := make([]string, 0, len(destinations))
	seen := make(map[string]struct{}, len(destinations))
	for _, d := range destinations {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		unique = append(unique, d)
	}

	results := make([]BulkRecipientResult, len(unique))
	var wg sync.WaitGroup
	for i, dest := range unique {
		wg.Add(1)
		go func(i int, dest string) {
			defer wg.Done()
			results[i] = BulkRecipientResult{
				Destination: dest,
				Outcome:     g.Send(ctx, dest, messageFn(dest), providerName),
			}
		}(i, dest)
	}
	wg.Wait()

	agg := BulkSendResult{Total: len(unique), Results: results}
	for _, r := range results {
		if r.Outcome.Success {
			agg.SuccessCount++
		} else {
			agg.FailedCount++
		}
	}
	return agg
}

// FixedMessage adapts a constant message to SendBulk's per-recipient
// message function.
func FixedMessage(message string) func(string) string {
	return func(string) string { return message }
}
