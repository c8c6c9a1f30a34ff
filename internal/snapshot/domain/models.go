package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Shipping outcome tokens form a closed vocabulary; anything else is rejected
// at the write boundary so every downstream consumer can trust the shape.
const (
	OutcomeInHouseToCustomer  = "in-house-to-customer"
	OutcomeDropShipToCustomer = "drop-ship-to-customer"
	OutcomeDropShipToFFL      = "drop-ship-to-ffl"
	OutcomeMixed              = "mixed"
)

func KnownOutcome(token string) bool {
	switch token {
	case OutcomeInHouseToCustomer, OutcomeDropShipToCustomer, OutcomeDropShipToFFL, OutcomeMixed:
		return true
	default:
		return false
	}
}

// SnapshotItem is the canonical item shape persisted at checkout time. All
// fields are mandatory on write; enrichment only ever back-fills values that
// still look like unresolved placeholders.
type SnapshotItem struct {
	SKU       string  `json:"sku"`
	UPC       string  `json:"upc"`
	MPN       string  `json:"mpn"`
	Name      string  `json:"name"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"price"`
	ImageURL  string  `json:"imageUrl"`
}

type Customer struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type MintedPart struct {
	Outcome     string `json:"outcome"`
	OrderNumber string `json:"orderNumber"`
}

// MintedOrderNumberSet is cached permanently on the snapshot: once written it
// is never recomputed for the same order.
type MintedOrderNumberSet struct {
	Main  string       `json:"main"`
	Parts []MintedPart `json:"parts"`
}

func (m MintedOrderNumberSet) IsZero() bool {
	return m.Main == "" && len(m.Parts) == 0
}

type OrderSnapshot struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID          snowflake.ID   `gorm:"not null;uniqueIndex" json:"order_id"`
	Customer         datatypes.JSON `gorm:"type:jsonb;not null" json:"customer"`
	Items            datatypes.JSON `gorm:"type:jsonb;not null" json:"items"`
	ShippingOutcomes datatypes.JSON `gorm:"type:jsonb;not null" json:"shipping_outcomes"`
	Minted           datatypes.JSON `gorm:"type:jsonb;not null" json:"minted"`
	Status           string         `gorm:"type:text;not null" json:"status"`
	TransactionID    string         `gorm:"type:text;not null" json:"transaction_id"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	EnrichedAt       *time.Time     `json:"enriched_at,omitempty"`
}

func (OrderSnapshot) TableName() string { return "order_snapshots" }

// MintSequence backs the monotonically-issued base numbers, one row per
// scope so test orders never consume live sequence space.
type MintSequence struct {
	Scope     string `gorm:"primaryKey;type:text" json:"scope"`
	LastValue int64  `gorm:"not null" json:"last_value"`
}

func (MintSequence) TableName() string { return "mint_sequences" }

const (
	SequenceScopeLive = "live"
	SequenceScopeTest = "test"
)

var (
	ErrNotFound  = errors.New("snapshot_not_found")
	ErrInvalidID = errors.New("invalid_order_id")
)

// InvalidItemsError rejects a snapshot write with the exact field paths that
// failed, e.g. items[0].upc.
type InvalidItemsError struct {
	Fields []string
}

func (e *InvalidItemsError) Error() string {
	return fmt.Sprintf("invalid snapshot payload: %s", strings.Join(e.Fields, ", "))
}

// SummaryValidationError is the read-path failure after enrichment: the
// snapshot exists but still cannot be rendered.
type SummaryValidationError struct {
	Fields []string
}

func (e *SummaryValidationError) Error() string {
	return fmt.Sprintf("summary validation failed: %s", strings.Join(e.Fields, ", "))
}
