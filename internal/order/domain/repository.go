package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListOrderFilter struct {
	UserID snowflake.ID
	Status OrderStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order, lines []OrderLine) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	ListLines(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderLine, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, page pagination.Pagination) ([]*Order, error)

	// SumFirearmQuantityInWindow aggregates firearm-line quantities across the
	// user's orders in the qualifying states created at or after since.
	SumFirearmQuantityInWindow(ctx context.Context, db *gorm.DB, userID snowflake.ID, since time.Time) (int, error)

	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderStatus, holdReason HoldReason, now time.Time) error
	SetDistributorResult(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderStatus, distributorOrderNumber string, now time.Time) error
	SetExternalDealID(ctx context.Context, db *gorm.DB, id snowflake.ID, dealID string, now time.Time) error
	SetFFLResolution(ctx context.Context, db *gorm.DB, id snowflake.ID, dealerID snowflake.ID, fflStatus FFLStatus, status OrderStatus, holdReason HoldReason, now time.Time) error
	AddNote(ctx context.Context, db *gorm.DB, note *OrderNote) error
}
