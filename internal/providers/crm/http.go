package crm

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

type contactRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type contactResponse struct {
	ContactID string `json:"contact_id"`
}

func (c *HTTPClient) FindOrCreateContact(ctx context.Context, email, name string) (string, error) {
	var resp contactResponse
	if err := c.post(ctx, "/v1/contacts/find-or-create", contactRequest{Email: email, Name: name}, &resp); err != nil {
		return "", err
	}
	if resp.ContactID == "" {
		return "", fmt.Errorf("crm returned empty contact id")
	}
	return resp.ContactID, nil
}

type dealRequest struct {
	ContactID string   `json:"contact_id"`
	Deal      DealData `json:"deal"`
}

func (c *HTTPClient) CreateDeal(ctx context.Context, contactID string, deal DealData) (DealResult, error) {
	var result DealResult
	if err := c.post(ctx, "/v1/deals", dealRequest{ContactID: contactID, Deal: deal}, &result); err != nil {
		return DealResult{}, err
	}
	return result, nil
}

type stageRequest struct {
	Stage string `json:"stage"`
}

type stageResponse struct {
	Updated bool `json:"updated"`
}

func (c *HTTPClient) UpdateDealStage(ctx context.Context, dealID, stage string) (bool, error) {
	var resp stageResponse
	if err := c.post(ctx, "/v1/deals/"+dealID+"/stage", stageRequest{Stage: stage}, &resp); err != nil {
		return false, err
	}
	return resp.Updated, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("crm request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
