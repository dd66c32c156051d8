package provider

import (
	"context"
)

// SendRequestDetails holds the data needed to send one message via a provider.
type SendRequestDetails struct {
	InternalMessageID string // Our system's attempt id, for log correlation
	Recipient         string
	Content           string
}

// SendResponseDetails is a provider's normalized outcome for one send.
// Each concrete provider maps its own response shape into this; request
// signing and wire formats stay invisible to callers.
type SendResponseDetails struct {
	ProviderMessageID string
	IsSuccess         bool
	ProviderStatus    string
	ErrorMessage      string
}

// Provider is the capability contract of a message transport: send one
// message to one address, report success/failure/message-id.
type Provider interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	GetName() string
}

const (
	ProviderSolapi = "solapi"
	ProviderAligo  = "aligo"
	ProviderMock   = "mock"
)
