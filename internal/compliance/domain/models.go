package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ComplianceConfig rows are append-only: an update deactivates the prior row
// and inserts a new one, so the decision inputs behind any historical order
// stay reconstructible.
type ComplianceConfig struct {
	ID                      snowflake.ID `gorm:"primaryKey" json:"id"`
	WindowDays              int          `gorm:"not null" json:"window_days"`
	FirearmLimit            int          `gorm:"not null" json:"firearm_limit"`
	MultiFirearmHoldEnabled bool         `gorm:"not null;default:true" json:"multi_firearm_hold_enabled"`
	FFLHoldEnabled          bool         `gorm:"not null;default:true" json:"ffl_hold_enabled"`
	Active                  bool         `gorm:"not null;index" json:"active"`
	CreatedBy               string       `gorm:"type:text" json:"created_by,omitempty"`
	CreatedAt               time.Time    `gorm:"not null" json:"created_at"`
}

func (ComplianceConfig) TableName() string { return "compliance_configs" }

type HoldType string

const (
	HoldTypeNone         HoldType = "None"
	HoldTypeFFL          HoldType = "FFL"
	HoldTypeMultiFirearm HoldType = "MultiFirearm"
)

// CartItem is the request-scoped purchase line the engine decides against.
type CartItem struct {
	ID           snowflake.ID `json:"id"`
	Name         string       `json:"name"`
	SKU          string       `json:"sku"`
	Quantity     int          `json:"quantity"`
	UnitPrice    float64      `json:"unit_price"`
	IsFirearm    bool         `json:"is_firearm"`
	RequiresFFL  bool         `json:"requires_ffl"`
	Manufacturer string       `json:"manufacturer,omitempty"`
}

type ComplianceCheckResult struct {
	HasFirearms              bool     `json:"has_firearms"`
	RequiresHold             bool     `json:"requires_hold"`
	HoldType                 HoldType `json:"hold_type"`
	CartFirearmCount         int      `json:"cart_firearm_count"`
	PastFirearmCountInWindow int      `json:"past_firearm_count_in_window"`
	WindowDays               int      `json:"window_days"`
	LimitQuantity            int      `json:"limit_quantity"`
	Reason                   string   `json:"reason,omitempty"`
}

type UpdateConfigRequest struct {
	WindowDays              int    `json:"window_days"`
	FirearmLimit            int    `json:"firearm_limit"`
	MultiFirearmHoldEnabled bool   `json:"multi_firearm_hold_enabled"`
	FFLHoldEnabled          bool   `json:"ffl_hold_enabled"`
	UpdatedBy               string `json:"-"`
}

var (
	ErrNoActiveConfig   = errors.New("no_active_compliance_config")
	ErrInvalidConfig    = errors.New("invalid_compliance_config")
	ErrUnknownUser      = errors.New("unknown_user")
	ErrEmptyCart        = errors.New("empty_cart")
	ErrInvalidQuantity  = errors.New("invalid_cart_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_cart_unit_price")
)
