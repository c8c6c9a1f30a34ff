package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/providers/payment"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
)

// CheckoutItem is a purchase line as submitted by the storefront. Identity
// and pricing come from the client cart; the orchestrator resolves the rest
// from the catalog where it can.
type CheckoutItem struct {
	ProductID   snowflake.ID `json:"product_id"`
	SKU         string       `json:"sku"`
	Name        string       `json:"name"`
	Quantity    int          `json:"quantity"`
	UnitPrice   float64      `json:"unit_price"`
	IsFirearm   bool         `json:"is_firearm"`
	RequiresFFL bool         `json:"requires_ffl"`
}

type CheckoutRequest struct {
	UserID   snowflake.ID            `json:"user_id"`
	Items    []CheckoutItem          `json:"items"`
	Card     payment.CardDetails     `json:"card"`
	Customer snapshotdomain.Customer `json:"customer"`
	// FFLRecipientID optionally pins the receiving dealer at checkout time.
	// Nil means the dealer is attached later through hold resolution.
	FFLRecipientID *snowflake.ID `json:"ffl_recipient_id,omitempty"`
}

type HoldInfo struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type CheckoutResult struct {
	Success       bool      `json:"success"`
	OrderID       string    `json:"orderId"`
	OrderNumber   string    `json:"orderNumber,omitempty"`
	Status        string    `json:"status"`
	Hold          *HoldInfo `json:"hold,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// PaymentError is a declined or failed capture. No order exists when this is
// returned.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment capture failed: %s", e.Reason)
}

// ErrCheckoutBusy means another checkout for the same user holds the
// serialization lock.
var ErrCheckoutBusy = errors.New("checkout_in_progress")
