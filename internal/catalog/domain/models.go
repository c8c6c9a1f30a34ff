package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Product struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	SKU          string       `gorm:"type:text;not null;uniqueIndex" json:"sku"`
	MPN          string       `gorm:"type:text;not null;index" json:"mpn"`
	UPC          string       `gorm:"type:text;not null;index" json:"upc"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	ImageURL     string       `gorm:"type:text" json:"image_url"`
	Manufacturer string       `gorm:"type:text" json:"manufacturer"`
	IsFirearm    bool         `gorm:"not null;default:false" json:"is_firearm"`
	RequiresFFL  bool         `gorm:"not null;default:false" json:"requires_ffl"`
	UnitPrice    float64      `gorm:"not null;default:0" json:"unit_price"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// Repository is the authoritative product lookup used by snapshot enrichment.
// Both lookups return nil without error when nothing matches.
type Repository interface {
	GetByUPC(ctx context.Context, db *gorm.DB, upc string) (*Product, error)
	GetByMPNOrSKU(ctx context.Context, db *gorm.DB, id string) (*Product, error)
}

var ErrNotFound = errors.New("product_not_found")
