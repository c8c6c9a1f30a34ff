package crm

import "context"

type DealData struct {
	OrderNumber string  `json:"order_number"`
	Amount      float64 `json:"amount"`
	Stage       string  `json:"stage"`
}

type DealResult struct {
	Success bool   `json:"success"`
	DealID  string `json:"deal_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Client is the CRM collaborator. All operations are best-effort from the
// orchestrator's point of view.
type Client interface {
	FindOrCreateContact(ctx context.Context, email, name string) (string, error)
	CreateDeal(ctx context.Context, contactID string, deal DealData) (DealResult, error)
	UpdateDealStage(ctx context.Context, dealID, stage string) (bool, error)
}
