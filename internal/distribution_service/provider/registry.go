package provider

import (
	"log/slog"
	"net/http"
)

// Settings is the read-only provider configuration built once at startup
// and injected here, rather than reading environment variables inside
// business logic.
type Settings struct {
	// Default names the active provider ("solapi", "aligo", "mock").
	// Empty means auto-detect: the first provider with complete
	// credentials, falling back to mock.
	Default string

	SolapiAPIKey    string
	SolapiAPISecret string
	SolapiSender    string

	AligoAPIKey string
	AligoUserID string
	AligoSender string

	MockFailRate float64
}

func (s Settings) solapiConfigured() bool {
	return s.SolapiAPIKey != "" && s.SolapiAPISecret != "" && s.SolapiSender != ""
}

func (s Settings) aligoConfigured() bool {
	return s.AligoAPIKey != "" && s.AligoUserID != "" && s.AligoSender != ""
}

// ResolveDefault applies the selection policy: explicit setting wins, then
// the first provider with complete credentials, then mock.
func (s Settings) ResolveDefault() string {
	if s.Default != "" {
		return s.Default
	}
	if s.solapiConfigured() {
		return ProviderSolapi
	}
	if s.aligoConfigured() {
		return ProviderAligo
	}
	return ProviderMock
}

// Build constructs the provider map and resolved default name for a
// Gateway. All known providers are registered so an explicit per-send
// provider choice works; missing credentials surface at the first send
// attempt to keep mock-mode startup credential-free.
func Build(logger *slog.Logger, s Settings, httpClient *http.Client) (map[string]Provider, string) {
	providers := map[string]Provider{
		ProviderSolapi: NewSolapiProvider(logger, "", s.SolapiAPIKey, s.SolapiAPISecret, s.SolapiSender, httpClient),
		ProviderAligo:  NewAligoProvider(logger, "", s.AligoAPIKey, s.AligoUserID, s.AligoSender, httpClient),
		ProviderMock:   NewMockProvider(logger, s.MockFailRate),
	}
	return providers, s.ResolveDefault()
}
