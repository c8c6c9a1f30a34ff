package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type WriteSnapshotRequest struct {
	OrderID          snowflake.ID
	Items            []SnapshotItem
	ShippingOutcomes []string
	Customer         Customer
	TransactionID    string
	Status           string
}

type Shipment struct {
	Outcome     string         `json:"outcome"`
	OrderNumber string         `json:"order_number"`
	Items       []SnapshotItem `json:"items"`
}

type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	Tax        float64 `json:"tax"`
	Shipping   float64 `json:"shipping"`
	GrandTotal float64 `json:"grand_total"`
}

type SummaryView struct {
	OrderID       string     `json:"order_id"`
	OrderNumber   string     `json:"order_number"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id"`
	Customer      Customer   `json:"customer"`
	MultiShipment bool       `json:"multi_shipment"`
	Shipments     []Shipment `json:"shipments"`
	Totals        Totals     `json:"totals"`
}

type Service interface {
	// WriteSnapshot persists the canonical order snapshot and mints the order
	// number set exactly once per order: a second write with the same orderId
	// reuses the first write's minted value unconditionally.
	WriteSnapshot(ctx context.Context, req WriteSnapshotRequest) (MintedOrderNumberSet, error)

	// ReadSummary loads, defensively mints, enriches placeholder fields from
	// the catalog, re-validates, and renders the summary view.
	ReadSummary(ctx context.Context, orderID snowflake.ID) (SummaryView, error)

	// MintedFor returns the cached minted set, or zero when no snapshot exists.
	MintedFor(ctx context.Context, orderID snowflake.ID) (MintedOrderNumberSet, error)
}
