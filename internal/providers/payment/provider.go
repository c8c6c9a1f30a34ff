package payment

import "context"

type CardDetails struct {
	Number         string `json:"number"`
	ExpMonth       int    `json:"exp_month"`
	ExpYear        int    `json:"exp_year"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
}

type BillingInfo struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

type CaptureResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Gateway is the payment collaborator. A declined or failed capture is
// reported through CaptureResult; a transport fault is the returned error.
// Callers treat both as a capture failure.
type Gateway interface {
	AuthorizeAndCapture(ctx context.Context, amount float64, card CardDetails, billing BillingInfo) (CaptureResult, error)
	CapturePriorAuth(ctx context.Context, transactionID string, amount float64) (CaptureResult, error)
}
