package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rangefront/armory/internal/snapshot/domain"
	pkgdb "github.com/rangefront/armory/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:snapshot-repo-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.OrderSnapshot{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db, node
}

func snapshotRow(node *snowflake.Node, orderID snowflake.ID) *domain.OrderSnapshot {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.OrderSnapshot{
		ID:               node.Generate(),
		OrderID:          orderID,
		Customer:         datatypes.JSON(`{}`),
		Items:            datatypes.JSON(`[]`),
		ShippingOutcomes: datatypes.JSON(`[]`),
		Minted:           datatypes.JSON(`{}`),
		Status:           "Paid",
		TransactionID:    "txn-1",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestInsertSecondWriterGetsDuplicateKeyErr(t *testing.T) {
	db, node := setupRepo(t)
	r := Provide()
	ctx := context.Background()

	orderID := node.Generate()
	require.NoError(t, r.Insert(ctx, db, snapshotRow(node, orderID)))

	err := r.Insert(ctx, db, snapshotRow(node, orderID))
	require.Error(t, err)
	require.True(t, pkgdb.IsDuplicateKeyErr(err))

	// The first writer's row is untouched.
	var count int64
	require.NoError(t, db.Model(&domain.OrderSnapshot{}).Where("order_id = ?", orderID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
