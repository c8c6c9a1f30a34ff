package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindActive(ctx context.Context, db *gorm.DB) (*ComplianceConfig, error)
	// Rotate deactivates the current active row and inserts the new one.
	// Callers run it inside a transaction.
	Rotate(ctx context.Context, db *gorm.DB, next *ComplianceConfig) error
}
