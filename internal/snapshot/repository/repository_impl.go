package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/snapshot/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.OrderSnapshot, error) {
	var snap domain.OrderSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_snapshots WHERE order_id = ?`,
		orderID,
	).Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) FindByOrderIDForUpdate(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.OrderSnapshot, error) {
	var snap domain.OrderSnapshot
	stmt := db.WithContext(ctx)
	if stmt.Dialector.Name() == "sqlite" {
		stmt = stmt.Raw(`SELECT * FROM order_snapshots WHERE order_id = ?`, orderID)
	} else {
		stmt = stmt.Raw(`SELECT * FROM order_snapshots WHERE order_id = ? FOR UPDATE`, orderID)
	}
	if err := stmt.Scan(&snap).Error; err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snapshot *domain.OrderSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_snapshots (
			id, order_id, customer, items, shipping_outcomes, minted,
			status, transaction_id, created_at, updated_at, enriched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.ID,
		snapshot.OrderID,
		snapshot.Customer,
		snapshot.Items,
		snapshot.ShippingOutcomes,
		snapshot.Minted,
		snapshot.Status,
		snapshot.TransactionID,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
		snapshot.EnrichedAt,
	).Error
}

func (r *repo) UpdateMutable(ctx context.Context, db *gorm.DB, orderID snowflake.ID, customer, items, outcomes datatypes.JSON, status, transactionID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_snapshots
		 SET customer = ?, items = ?, shipping_outcomes = ?, status = ?, transaction_id = ?, updated_at = ?
		 WHERE order_id = ?`,
		customer,
		items,
		outcomes,
		status,
		transactionID,
		now,
		orderID,
	).Error
}

func (r *repo) SetMinted(ctx context.Context, db *gorm.DB, orderID snowflake.ID, minted datatypes.JSON, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_snapshots SET minted = ?, updated_at = ? WHERE order_id = ?`,
		minted,
		now,
		orderID,
	).Error
}

func (r *repo) SetItemsEnriched(ctx context.Context, db *gorm.DB, orderID snowflake.ID, items datatypes.JSON, enrichedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_snapshots SET items = ?, enriched_at = ?, updated_at = ? WHERE order_id = ?`,
		items,
		enrichedAt,
		enrichedAt,
		orderID,
	).Error
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, scope string) (int64, error) {
	// The UPDATE takes a row lock, so concurrent minters serialize here.
	result := db.WithContext(ctx).Exec(
		`UPDATE mint_sequences SET last_value = last_value + 1 WHERE scope = ?`,
		scope,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("mint sequence %q not seeded", scope)
	}

	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT last_value FROM mint_sequences WHERE scope = ?`,
		scope,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
