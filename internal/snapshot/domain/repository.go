package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*OrderSnapshot, error)
	FindByOrderIDForUpdate(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*OrderSnapshot, error)
	// Insert fails with the driver's duplicate-key error when a snapshot
	// already exists for the order; callers detect the lost race with
	// db.IsDuplicateKeyErr and converge on the first writer's row.
	Insert(ctx context.Context, db *gorm.DB, snapshot *OrderSnapshot) error
	UpdateMutable(ctx context.Context, db *gorm.DB, orderID snowflake.ID, customer, items, outcomes datatypes.JSON, status, transactionID string, now time.Time) error
	SetMinted(ctx context.Context, db *gorm.DB, orderID snowflake.ID, minted datatypes.JSON, now time.Time) error
	SetItemsEnriched(ctx context.Context, db *gorm.DB, orderID snowflake.ID, items datatypes.JSON, enrichedAt time.Time) error
	// NextSequence advances and returns the scope's sequence under row lock.
	NextSequence(ctx context.Context, db *gorm.DB, scope string) (int64, error)
}
