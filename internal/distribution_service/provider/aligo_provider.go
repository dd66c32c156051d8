package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultAligoAPIURL = "https://apis.aligo.in/send/"

// AligoProvider sends SMS messages through the Aligo form-POST API.
type AligoProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
	userID     string
	sender     string
}

// NewAligoProvider creates an AligoProvider. apiURL may be empty to use
// the production endpoint; httpClient may be nil for a sane default.
func NewAligoProvider(logger *slog.Logger, apiURL, apiKey, userID, sender string, httpClient *http.Client) *AligoProvider {
	if apiURL == "" {
		apiURL = defaultAligoAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &AligoProvider{
		logger:     logger.With("provider", ProviderAligo),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
		userID:     userID,
		sender:     sender,
	}
}

func (p *AligoProvider) GetName() string {
	return ProviderAligo
}

// aligoSendResponse mirrors Aligo's JSON reply. ResultCode > 0 means the
// message was accepted; MsgID is Aligo's tracking id.
type aligoSendResponse struct {
	ResultCode json.Number `json:"result_code"`
	Message    string      `json:"message"`
	MsgID      json.Number `json:"msg_id"`
	SuccessCnt json.Number `json:"success_cnt"`
}

// Send submits one message to Aligo and normalizes the response.
func (p *AligoProvider) Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error) {
	if p.apiKey == "" || p.userID == "" {
		return nil, fmt.Errorf("aligo credentials not configured")
	}

	timer := prometheus.NewTimer(providerRequestDurationHist.WithLabelValues(p.GetName()))
	defer timer.ObserveDuration()

	form := url.Values{}
	form.Set("key", p.apiKey)
	form.Set("user_id", p.userID)
	form.Set("sender", p.sender)
	form.Set("receiver", details.Recipient)
	form.Set("msg", details.Content)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request for Aligo: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to send request to Aligo",
			"error", err, "internal_message_id", details.InternalMessageID)
		return nil, fmt.Errorf("failed to send request to Aligo: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil {
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_ALIGO_READ_ERR_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("aligo response read failed (status %d): %v", httpResp.StatusCode, readErr),
		}, nil
	}

	var parsed aligoSendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		p.logger.ErrorContext(ctx, "Failed to parse Aligo response",
			"status_code", httpResp.StatusCode, "body", string(respBytes))
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: fmt.Sprintf("FAILED_ALIGO_PARSE_%d", httpResp.StatusCode),
			ErrorMessage:   fmt.Sprintf("aligo returned unparseable response (status %d)", httpResp.StatusCode),
		}, nil
	}

	resultCode, _ := parsed.ResultCode.Int64()
	if httpResp.StatusCode != http.StatusOK || resultCode <= 0 {
		errMsg := parsed.Message
		if errMsg == "" {
			errMsg = fmt.Sprintf("aligo rejected the message (result_code %d)", resultCode)
		}
		p.logger.WarnContext(ctx, "Aligo send rejected",
			"result_code", resultCode,
			"internal_message_id", details.InternalMessageID)
		return &SendResponseDetails{
			IsSuccess:      false,
			ProviderStatus: "FAILED_ALIGO_" + strconv.FormatInt(resultCode, 10),
			ErrorMessage:   errMsg,
		}, nil
	}

	p.logger.InfoContext(ctx, "Aligo send accepted",
		"internal_message_id", details.InternalMessageID,
		"provider_message_id", parsed.MsgID.String())

	return &SendResponseDetails{
		ProviderMessageID: parsed.MsgID.String(),
		IsSuccess:         true,
		ProviderStatus:    "SENT_ALIGO_OK",
	}, nil
}
