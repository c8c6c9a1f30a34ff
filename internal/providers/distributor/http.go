package distributor

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

type HTTPClient struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config) *HTTPClient {
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (c *HTTPClient) SubmitOrder(ctx context.Context, payload OrderPayload) (SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return SubmitResult{}, err
	}
	defer resp.Body.Close()

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SubmitResult{}, fmt.Errorf("decode distributor response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return SubmitResult{}, fmt.Errorf("distributor fault: status %d", resp.StatusCode)
	}
	return result, nil
}
