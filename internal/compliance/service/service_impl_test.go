package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accountdomain "github.com/rangefront/armory/internal/account/domain"
	accountrepo "github.com/rangefront/armory/internal/account/repository"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/compliance/domain"
	compliancerepo "github.com/rangefront/armory/internal/compliance/repository"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	fflrepo "github.com/rangefront/armory/internal/ffl/repository"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	orderrepo "github.com/rangefront/armory/internal/order/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:compliance-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&accountdomain.Account{},
		&domain.ComplianceConfig{},
		&ffldomain.FFLRecord{},
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupService(t *testing.T, db *gorm.DB, node *snowflake.Node, clk clock.Clock) *Service {
	t.Helper()
	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        compliancerepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		FFLRepo:     fflrepo.Provide(),
		OrderRepo:   orderrepo.Provide(),
	})
	return svc.(*Service)
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node) snowflake.ID {
	t.Helper()
	account := accountdomain.Account{
		ID:        node.Generate(),
		Email:     fmt.Sprintf("buyer-%d@example.com", node.Generate()),
		Name:      "Test Buyer",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account.ID
}

func seedConfig(t *testing.T, db *gorm.DB, node *snowflake.Node, windowDays, limit int) {
	t.Helper()
	cfg := domain.ComplianceConfig{
		ID:                      node.Generate(),
		WindowDays:              windowDays,
		FirearmLimit:            limit,
		MultiFirearmHoldEnabled: true,
		FFLHoldEnabled:          true,
		Active:                  true,
		CreatedAt:               time.Now().UTC(),
	}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}
}

func seedVerifiedFFL(t *testing.T, db *gorm.DB, node *snowflake.Node, userID snowflake.ID, now time.Time) {
	t.Helper()
	record := ffldomain.FFLRecord{
		ID:            node.Generate(),
		UserID:        userID,
		LicenseNumber: "1-23-456-78-9A-00001",
		DealerName:    "Test Dealer",
		Status:        ffldomain.RecordStatusVerified,
		ExpiresAt:     now.AddDate(1, 0, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed ffl record: %v", err)
	}
}

func seedFirearmOrder(t *testing.T, db *gorm.DB, node *snowflake.Node, userID snowflake.ID, qty int, status orderdomain.OrderStatus, createdAt time.Time) {
	t.Helper()
	order := orderdomain.Order{
		ID:                   node.Generate(),
		UserID:               userID,
		TotalPrice:           499.99,
		Status:               status,
		PaymentTransactionID: "txn-past",
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	line := orderdomain.OrderLine{
		ID:         node.Generate(),
		OrderID:    order.ID,
		ProductID:  node.Generate(),
		Name:       "Rifle",
		SKU:        "RIF-1",
		Quantity:   qty,
		UnitPrice:  499.99,
		TotalPrice: 499.99 * float64(qty),
		IsFirearm:  true,
		CreatedAt:  createdAt,
	}
	if err := db.Create(&line).Error; err != nil {
		t.Fatalf("seed order line: %v", err)
	}
}

func firearmItem(node *snowflake.Node, qty int) domain.CartItem {
	return domain.CartItem{
		ID:        node.Generate(),
		Name:      "Pistol",
		SKU:       "PST-9",
		Quantity:  qty,
		UnitPrice: 599.00,
		IsFirearm: true,
	}
}

func TestCheckNonFirearmCartNeverHolds(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)

	result, err := svc.Check(context.Background(), userID, []domain.CartItem{
		{ID: node.Generate(), Name: "Cleaning Kit", SKU: "KIT-1", Quantity: 3, UnitPrice: 19.99},
	})
	require.NoError(t, err)
	require.False(t, result.HasFirearms)
	require.False(t, result.RequiresHold)
	require.Equal(t, domain.HoldTypeNone, result.HoldType)
}

func TestCheckFFLHoldWinsOverWindowLimit(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	// No FFL record, and enough past purchases to also trip the window limit.
	seedFirearmOrder(t, db, node, userID, 5, orderdomain.StatusPaid, now.AddDate(0, 0, -3))

	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.True(t, result.RequiresHold)
	require.Equal(t, domain.HoldTypeFFL, result.HoldType)
	require.Equal(t, "No verified FFL on file", result.Reason)
	require.Equal(t, 5, result.PastFirearmCountInWindow)
}

func TestCheckWindowLimitBoundary(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	seedVerifiedFFL(t, db, node, userID, now)
	seedFirearmOrder(t, db, node, userID, 4, orderdomain.StatusPaid, now.AddDate(0, 0, -10))

	// past 4 + cart 1 reaches the limit of 5.
	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.True(t, result.RequiresHold)
	require.Equal(t, domain.HoldTypeMultiFirearm, result.HoldType)
	require.Equal(t, 4, result.PastFirearmCountInWindow)
	require.Equal(t, 1, result.CartFirearmCount)
}

func TestCheckUnderWindowLimitPasses(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	seedVerifiedFFL(t, db, node, userID, now)
	seedFirearmOrder(t, db, node, userID, 3, orderdomain.StatusPaid, now.AddDate(0, 0, -10))

	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.False(t, result.RequiresHold)
	require.Equal(t, domain.HoldTypeNone, result.HoldType)
	require.Equal(t, 3, result.PastFirearmCountInWindow)
}

func TestCheckOrdersOutsideWindowDoNotCount(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	seedVerifiedFFL(t, db, node, userID, now)
	// Old enough to fall out of the 30-day window.
	seedFirearmOrder(t, db, node, userID, 5, orderdomain.StatusPaid, now.AddDate(0, 0, -31))

	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.False(t, result.RequiresHold)
	require.Equal(t, 0, result.PastFirearmCountInWindow)
}

func TestCheckCancelledOrdersDoNotCount(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	seedVerifiedFFL(t, db, node, userID, now)
	seedFirearmOrder(t, db, node, userID, 5, orderdomain.StatusCancelled, now.AddDate(0, 0, -3))

	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.False(t, result.RequiresHold)
	require.Equal(t, 0, result.PastFirearmCountInWindow)
}

func TestCheckRejectsBadInput(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)

	_, err := svc.Check(context.Background(), userID, nil)
	require.ErrorIs(t, err, domain.ErrEmptyCart)

	_, err = svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 0)})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	badPrice := firearmItem(node, 1)
	badPrice.UnitPrice = -1
	_, err = svc.Check(context.Background(), userID, []domain.CartItem{badPrice})
	require.ErrorIs(t, err, domain.ErrInvalidUnitPrice)

	_, err = svc.Check(context.Background(), node.Generate(), []domain.CartItem{firearmItem(node, 1)})
	require.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestUpdateConfigRotatesAndApplies(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)
	seedConfig(t, db, node, 30, 5)
	seedVerifiedFFL(t, db, node, userID, now)
	seedFirearmOrder(t, db, node, userID, 2, orderdomain.StatusPaid, now.AddDate(0, 0, -3))

	updated, err := svc.UpdateConfig(context.Background(), domain.UpdateConfigRequest{
		WindowDays:              30,
		FirearmLimit:            3,
		MultiFirearmHoldEnabled: true,
		FFLHoldEnabled:          true,
		UpdatedBy:               "admin-1",
	})
	require.NoError(t, err)
	require.Equal(t, 3, updated.FirearmLimit)

	// Exactly one active config after rotation.
	var active int64
	require.NoError(t, db.Model(&domain.ComplianceConfig{}).Where("active = ?", true).Count(&active).Error)
	require.EqualValues(t, 1, active)

	// The tightened limit applies immediately: 2 past + 1 cart >= 3.
	result, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.NoError(t, err)
	require.True(t, result.RequiresHold)
	require.Equal(t, domain.HoldTypeMultiFirearm, result.HoldType)
}

func TestCheckNoActiveConfig(t *testing.T) {
	node := mustNode(t)
	db := setupDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := setupService(t, db, node, clock.NewFakeClock(now))

	userID := seedAccount(t, db, node)

	_, err := svc.Check(context.Background(), userID, []domain.CartItem{firearmItem(node, 1)})
	require.True(t, errors.Is(err, domain.ErrNoActiveConfig))
}
