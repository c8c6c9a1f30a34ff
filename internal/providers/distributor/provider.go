package distributor

import (
	"context"
	"time"
)

type PayloadLine struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type ShipTo struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	FFLNumber  string `json:"ffl_number,omitempty"`
}

type OrderPayload struct {
	OrderNumber string        `json:"order_number"`
	Lines       []PayloadLine `json:"lines"`
	ShipTo      ShipTo        `json:"ship_to"`
}

type SubmitResult struct {
	Success                bool       `json:"success"`
	DistributorOrderNumber string     `json:"distributor_order_number,omitempty"`
	EstimatedShipDate      *time.Time `json:"estimated_ship_date,omitempty"`
	Error                  string     `json:"error,omitempty"`
}

// Client submits fulfillable orders to the distributor. Failures are
// best-effort from the checkout's point of view: the caller records them and
// moves the order to manual processing instead of failing the purchase.
type Client interface {
	SubmitOrder(ctx context.Context, payload OrderPayload) (SubmitResult, error)
}
