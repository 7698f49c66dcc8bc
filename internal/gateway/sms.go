package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SendRequest is one campaign blast handed to the messaging gateway.
type SendRequest struct {
	CampaignID string   `json:"campaign_id"`
	Channel    string   `json:"channel"`
	Sender     string   `json:"sender"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

// SendResponse is the gateway's acknowledgement.
type SendResponse struct {
	BatchID  string `json:"batch_id"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// Sender dispatches campaign messages through the third-party gateway.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
}

type httpSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSender creates a gateway client with the given base URL and API key.
func NewHTTPSender(baseURL, apiKey string, timeout time.Duration) Sender {
	return &httpSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *httpSender) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if len(req.Recipients) == 0 {
		return nil, errors.New("gateway: no recipients")
	}

	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages/batch", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway: batch send failed: %s", resp.Status)
	}

	var out SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.BatchID == "" {
		return nil, errors.New("gateway: empty batch id")
	}

	return &out, nil
}
