package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultSolapiAPIURL = "https://api.solapi.com/messages/v4/send"

// SolapiProvider sends SMS/kakao messages through the Solapi API.
type SolapiProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	apiSecret  string
	sender     string
}

// NewSolapiProvider creates a SolapiProvider. apiURL may be empty to use
// the production endpoint; httpClient may be nil for a sane default.
func NewSolapiProvider(logger *slog.Logger, apiURL, apiKey, apiSecret, sender string, httpClient *http.Client) *SolapiProvider {
	if apiURL == "" {
		apiURL = defaultSolapiAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SolapiProvider{
		logger:     logger.With("provider", ProviderSolapi),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		sender:     sender,
	}
}

func (p *SolapiProvider) GetName() string {
	return ProviderSolapi
}

// solapiSendRequestBody is the message envelope Solapi's v4 send expects.
type solapiSendRequestBody struct {
	Message solapiMessage `json:"message"`
}

type solapiMessage struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

// solapiSendResponse covers the fields we need from both success and
// error responses.
type solapiSendResponse struct {
	GroupID       string `json:"groupId"`
	MessageID     string `json:"messageId"`
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

// authorizationHeader builds Solapi's HMAC-SHA256 auth header: the
// signature is HMAC(date+salt, apiSecret) hex-encoded.
func (p *SolapiProvider) authorizationHeader(now time.Time) string {
	date := now.UTC().Format(time.RFC3339)
	salt := uuid.NewString()

	mac := hmac.New(sha256.New, []byte(p.apiSecret))
	mac.Write([]byte(date + salt))
	signature := hex.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("HMAC-SHA256 apiKey=%s, date=%s, salt=%s, signature=%s",
		p.apiKey, date, salt, signature)
}

// Send submits one message to Solapi and normalizes the response.
func (p *SolapiProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	if p.apiKey == "" || p.apiSecret == "" {
		// Credentials are checked at the send attempt, not startup, so
		// mock-mode deployments can run without any Solapi config.
		return nil, fmt.Errorf("solapi credentials not configured")
	}

	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()

	reqBody := solapiSendRequestBody{
		Message: solapiMessage{
			To:   details.Recipient,
			From: p.sender,
			Text: details.Content,
		},
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request for Solapi: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request for Solapi: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", p.authorizationHeader(time.Now()))

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Solapi",
			"error", err, "internal_message_id", details.InternalMessageID)
		return nil, fmt.Errorf("failed to send request to Solapi: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_SOLAPI_READ_ERR_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("solapi response read failed (status %d): %v", httpResp.StatusCode, readErr),
		}, nil
	}

	var parsed solapiSendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		p.logger.ErrorContext(ctx, "Failed to parse Solapi response",
			"status_code", httpResp.StatusCode, "body", string(respBytes))
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_SOLAPI_PARSE_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("solapi returned unparseable response (status %d)", httpResp.StatusCode),
		}, nil
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 || parsed.ErrorCode != "" {
		errMsg := parsed.ErrorMessage
		if errMsg == "" {
			errMsg = parsed.StatusMessage
		}
		if errMsg == "" {
			errMsg = fmt.Sprintf("solapi rejected the message (status %d)", httpResp.StatusCode)
		}
		p.logger.WarnContext(ctx, "Solapi send rejected",
			"status_code", httpResp.StatusCode,
			"error_code", parsed.ErrorCode,
			"internal_message_id", details.InternalMessageID)
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_SOLAPI_" + parsed.ErrorCode,
			ErrorMessage:   errMsg,
		}, nil
	}

	providerMsgID := parsed.MessageID
	if providerMsgID == "" {
		providerMsgID = parsed.GroupID
	}
	p.logger.InfoContext(ctx, "Solapi send accepted",
		"internal_message_id", details.InternalMessageID,
		"provider_message_id", providerMsgID,
		"status_code", parsed.StatusCode)

	return &SendResponseDetails{
		ProviderMessageID: providerMsgID,
		IsSuccess:         true,
		ProviderStatus:    parsed.StatusCode,
	}, nil
}
