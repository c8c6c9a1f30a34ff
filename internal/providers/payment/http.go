package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type Config struct {
	BaseURL string
	APIKey  string
}

type HTTPGateway struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type captureRequest struct {
	Amount  float64     `json:"amount"`
	Card    CardDetails `json:"card"`
	Billing BillingInfo `json:"billing"`
}

type priorAuthRequest struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
}

func (g *HTTPGateway) AuthorizeAndCapture(ctx context.Context, amount float64, card CardDetails, billing BillingInfo) (CaptureResult, error) {
	return g.post(ctx, "/v1/charges", captureRequest{
		Amount:  amount,
		Card:    card,
		Billing: billing,
	})
}

func (g *HTTPGateway) CapturePriorAuth(ctx context.Context, transactionID string, amount float64) (CaptureResult, error) {
	return g.post(ctx, "/v1/captures", priorAuthRequest{
		TransactionID: transactionID,
		Amount:        amount,
	})
}

func (g *HTTPGateway) post(ctx context.Context, path string, payload any) (CaptureResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return CaptureResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return CaptureResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return CaptureResult{}, err
	}
	defer resp.Body.Close()

	var result CaptureResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CaptureResult{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return CaptureResult{}, fmt.Errorf("gateway fault: status %d", resp.StatusCode)
	}
	return result, nil
}
