package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Order struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID                 snowflake.ID  `gorm:"not null;index" json:"user_id"`
	TotalPrice             float64       `gorm:"not null" json:"total_price"`
	Status                 OrderStatus   `gorm:"type:text;not null;index" json:"status"`
	HoldReason             HoldReason    `gorm:"type:text;not null;default:''" json:"hold_reason,omitempty"`
	FFLRequired            bool          `gorm:"not null;default:false" json:"ffl_required"`
	FFLStatus              FFLStatus     `gorm:"type:text;not null;default:'Missing'" json:"ffl_status"`
	FFLDealerID            *snowflake.ID `json:"ffl_dealer_id,omitempty"`
	FirearmsWindowCount    int           `gorm:"not null;default:0" json:"firearms_window_count"`
	WindowDays             int           `gorm:"not null;default:0" json:"window_days"`
	LimitQty               int           `gorm:"not null;default:0" json:"limit_qty"`
	PaymentTransactionID   string        `gorm:"type:text;not null" json:"payment_transaction_id"`
	DistributorOrderNumber *string       `gorm:"type:text" json:"distributor_order_number,omitempty"`
	ExternalDealID         *string       `gorm:"type:text" json:"external_deal_id,omitempty"`
	CreatedAt              time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderLine freezes is_firearm at insert time. Line-item firearm status must
// not change retroactively even if catalog data changes later.
type OrderLine struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID    snowflake.ID `gorm:"not null;index" json:"order_id"`
	ProductID  snowflake.ID `gorm:"not null" json:"product_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	SKU        string       `gorm:"type:text;not null" json:"sku"`
	Quantity   int          `gorm:"not null" json:"quantity"`
	UnitPrice  float64      `gorm:"not null" json:"unit_price"`
	TotalPrice float64      `gorm:"not null" json:"total_price"`
	IsFirearm  bool         `gorm:"not null;default:false" json:"is_firearm"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

func (OrderLine) TableName() string { return "order_lines" }

type OrderNote struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID   snowflake.ID `gorm:"not null;index" json:"order_id"`
	Note      string       `gorm:"type:text;not null" json:"note"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (OrderNote) TableName() string { return "order_notes" }

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrInvalidID         = errors.New("invalid_order_id")
	ErrInvalidTransition = errors.New("invalid_status_transition")
)
