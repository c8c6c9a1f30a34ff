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
	auditdomain "github.com/rangefront/armory/internal/audit/domain"
	auditservice "github.com/rangefront/armory/internal/audit/service"
	catalogdomain "github.com/rangefront/armory/internal/catalog/domain"
	catalogrepo "github.com/rangefront/armory/internal/catalog/repository"
	"github.com/rangefront/armory/internal/checkout/domain"
	"github.com/rangefront/armory/internal/clock"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
	compliancerepo "github.com/rangefront/armory/internal/compliance/repository"
	complianceservice "github.com/rangefront/armory/internal/compliance/service"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	fflrepo "github.com/rangefront/armory/internal/ffl/repository"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	orderrepo "github.com/rangefront/armory/internal/order/repository"
	outboxdomain "github.com/rangefront/armory/internal/outbox/domain"
	outboxrepo "github.com/rangefront/armory/internal/outbox/repository"
	outboxservice "github.com/rangefront/armory/internal/outbox/service"
	"github.com/rangefront/armory/internal/providers/payment"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	snapshotrepo "github.com/rangefront/armory/internal/snapshot/repository"
	snapshotservice "github.com/rangefront/armory/internal/snapshot/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubLock grants or refuses every acquisition.
type stubLock struct {
	contended bool
	released  int
}

func (l *stubLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.contended {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *stubLock) Release(ctx context.Context, key, token string) error {
	l.released++
	return nil
}

// stubGateway records capture attempts and answers with a canned result.
type stubGateway struct {
	decline bool
	fail    error
	calls   int
	amounts []float64
}

func (g *stubGateway) AuthorizeAndCapture(ctx context.Context, amount float64, card payment.CardDetails, billing payment.BillingInfo) (payment.CaptureResult, error) {
	g.calls++
	g.amounts = append(g.amounts, amount)
	if g.fail != nil {
		return payment.CaptureResult{}, g.fail
	}
	if g.decline {
		return payment.CaptureResult{Success: false, Error: "card_declined"}, nil
	}
	return payment.CaptureResult{Success: true, TransactionID: fmt.Sprintf("txn-%d", g.calls)}, nil
}

func (g *stubGateway) CapturePriorAuth(ctx context.Context, transactionID string, amount float64) (payment.CaptureResult, error) {
	return payment.CaptureResult{Success: true, TransactionID: transactionID}, nil
}

type checkoutFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	lock    *stubLock
	gateway *stubGateway
	svc     domain.Service
	userID  snowflake.ID
}

func setupCheckout(t *testing.T) *checkoutFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:checkout-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&accountdomain.Account{},
		&compliancedomain.ComplianceConfig{},
		&ffldomain.FFLRecord{},
		&ffldomain.FFLDealer{},
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
		&catalogdomain.Product{},
		&snapshotdomain.OrderSnapshot{},
		&snapshotdomain.MintSequence{},
		&outboxdomain.Task{},
		&auditdomain.AuditLog{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, scope := range []string{snapshotdomain.SequenceScopeLive, snapshotdomain.SequenceScopeTest} {
		if err := db.Create(&snapshotdomain.MintSequence{Scope: scope, LastValue: 0}).Error; err != nil {
			t.Fatalf("seed sequence: %v", err)
		}
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()
	fulfillment := &config.FulfillmentConfigHolder{}

	compliance := complianceservice.New(complianceservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        compliancerepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		FFLRepo:     fflrepo.Provide(),
		OrderRepo:   orderrepo.Provide(),
	})
	snapshots := snapshotservice.New(snapshotservice.Params{
		Cfg:         config.Config{},
		Fulfillment: fulfillment,
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Repo:        snapshotrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
	})
	enqueuer := outboxservice.New(outboxservice.Params{
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  outboxrepo.Provide(),
	})
	audit := auditservice.New(auditservice.Params{DB: db, Log: log, GenID: node})

	lock := &stubLock{}
	gateway := &stubGateway{}

	svc := New(Params{
		Fulfillment: fulfillment,
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Locker:      lock,
		Compliance:  compliance,
		OrderRepo:   orderrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		FFLRepo:     fflrepo.Provide(),
		Snapshots:   snapshots,
		Outbox:      enqueuer,
		Gateway:     gateway,
		Audit:       audit,
	})

	account := accountdomain.Account{
		ID:        node.Generate(),
		Email:     "buyer@example.com",
		Name:      "Test Buyer",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	cfg := compliancedomain.ComplianceConfig{
		ID:                      node.Generate(),
		WindowDays:              30,
		FirearmLimit:            5,
		MultiFirearmHoldEnabled: true,
		FFLHoldEnabled:          true,
		Active:                  true,
		CreatedAt:               now,
	}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}

	return &checkoutFixture{
		db:      db,
		node:    node,
		clock:   clk,
		lock:    lock,
		gateway: gateway,
		svc:     svc,
		userID:  account.ID,
	}
}

func (f *checkoutFixture) seedVerifiedFFL(t *testing.T) {
	t.Helper()
	now := f.clock.Now()
	record := ffldomain.FFLRecord{
		ID:            f.node.Generate(),
		UserID:        f.userID,
		LicenseNumber: "1-23-456-78-9A-00001",
		DealerName:    "Test Dealer",
		Status:        ffldomain.RecordStatusVerified,
		ExpiresAt:     now.AddDate(1, 0, 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("seed ffl record: %v", err)
	}
}

func (f *checkoutFixture) seedDealer(t *testing.T) snowflake.ID {
	t.Helper()
	dealer := ffldomain.FFLDealer{
		ID:            f.node.Generate(),
		Name:          "Hill Country Firearms",
		LicenseNumber: "5-74-123-45-6C-78901",
		City:          "Dripping Springs",
		State:         "TX",
		Active:        true,
		CreatedAt:     f.clock.Now(),
	}
	if err := f.db.Create(&dealer).Error; err != nil {
		t.Fatalf("seed dealer: %v", err)
	}
	return dealer.ID
}

func (f *checkoutFixture) request(items ...domain.CheckoutItem) domain.CheckoutRequest {
	return domain.CheckoutRequest{
		UserID: f.userID,
		Items:  items,
		Card: payment.CardDetails{
			Number:         "4111111111111111",
			ExpMonth:       12,
			ExpYear:        2030,
			CVV:            "123",
			CardholderName: "Test Buyer",
		},
		Customer: snapshotdomain.Customer{
			Email:      "buyer@example.com",
			Name:       "Test Buyer",
			Address:    "1 Main St",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
		},
	}
}

func (f *checkoutFixture) accessoryItem() domain.CheckoutItem {
	return domain.CheckoutItem{
		ProductID: f.node.Generate(),
		SKU:       "KIT-1",
		Name:      "Cleaning Kit",
		Quantity:  2,
		UnitPrice: 19.99,
	}
}

func (f *checkoutFixture) firearmItem() domain.CheckoutItem {
	return domain.CheckoutItem{
		ProductID: f.node.Generate(),
		SKU:       "PST-9",
		Name:      "Pistol",
		Quantity:  1,
		UnitPrice: 599.00,
		IsFirearm: true,
	}
}

func (f *checkoutFixture) taskKinds(t *testing.T) []string {
	t.Helper()
	var kinds []string
	if err := f.db.Model(&outboxdomain.Task{}).Order("kind").Pluck("kind", &kinds).Error; err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	return kinds
}

func TestCheckoutCleanCartIsPaid(t *testing.T) {
	f := setupCheckout(t)

	result, err := f.svc.Checkout(context.Background(), f.request(f.accessoryItem()))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, string(orderdomain.StatusPaid), result.Status)
	require.Nil(t, result.Hold)
	require.Equal(t, "txn-1", result.TransactionID)
	require.Equal(t, "0000001W", result.OrderNumber)

	require.Equal(t, 1, f.gateway.calls)
	require.Equal(t, []float64{39.98}, f.gateway.amounts)
	require.Equal(t, 1, f.lock.released)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order).Error)
	require.Equal(t, orderdomain.StatusPaid, order.Status)
	require.Equal(t, orderdomain.HoldReasonNone, order.HoldReason)
	require.Equal(t, "txn-1", order.PaymentTransactionID)
	require.False(t, order.FFLRequired)

	// Paid orders get both side effects.
	require.Equal(t, []string{"crm_sync", "distributor_submit"}, f.taskKinds(t))
}

func TestCheckoutMissingFFLHoldsButStillCaptures(t *testing.T) {
	f := setupCheckout(t)

	result, err := f.svc.Checkout(context.Background(), f.request(f.firearmItem()))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, string(orderdomain.StatusPendingFFL), result.Status)
	require.NotNil(t, result.Hold)
	require.Equal(t, string(compliancedomain.HoldTypeFFL), result.Hold.Type)

	// Payment is captured before the hold is applied.
	require.Equal(t, 1, f.gateway.calls)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order).Error)
	require.Equal(t, orderdomain.StatusPendingFFL, order.Status)
	require.Equal(t, orderdomain.HoldReasonFFL, order.HoldReason)
	require.Equal(t, orderdomain.FFLStatusMissing, order.FFLStatus)
	require.True(t, order.FFLRequired)
	require.NotEmpty(t, order.PaymentTransactionID)

	// Held orders never reach the distributor.
	require.Equal(t, []string{"crm_sync"}, f.taskKinds(t))
}

func TestCheckoutWindowLimitHoldFreezesDecisionInputs(t *testing.T) {
	f := setupCheckout(t)
	f.seedVerifiedFFL(t)

	now := f.clock.Now()
	past := orderdomain.Order{
		ID:                   f.node.Generate(),
		UserID:               f.userID,
		TotalPrice:           499.99,
		Status:               orderdomain.StatusPaid,
		PaymentTransactionID: "txn-past",
		CreatedAt:            now.AddDate(0, 0, -3),
		UpdatedAt:            now.AddDate(0, 0, -3),
	}
	require.NoError(t, f.db.Create(&past).Error)
	require.NoError(t, f.db.Create(&orderdomain.OrderLine{
		ID:         f.node.Generate(),
		OrderID:    past.ID,
		ProductID:  f.node.Generate(),
		Name:       "Rifle",
		SKU:        "RIF-1",
		Quantity:   4,
		UnitPrice:  499.99,
		TotalPrice: 1999.96,
		IsFirearm:  true,
		CreatedAt:  past.CreatedAt,
	}).Error)

	result, err := f.svc.Checkout(context.Background(), f.request(f.firearmItem()))
	require.NoError(t, err)
	require.Equal(t, string(orderdomain.StatusMultiFirearmHold), result.Status)
	require.NotNil(t, result.Hold)
	require.Equal(t, string(compliancedomain.HoldTypeMultiFirearm), result.Hold.Type)

	var order orderdomain.Order
	require.NoError(t, f.db.Where("id <> ?", past.ID).First(&order).Error)
	require.Equal(t, orderdomain.StatusMultiFirearmHold, order.Status)
	require.Equal(t, 4, order.FirearmsWindowCount)
	require.Equal(t, 30, order.WindowDays)
	require.Equal(t, 5, order.LimitQty)
}

func TestCheckoutDeclinedPaymentLeavesNoOrder(t *testing.T) {
	f := setupCheckout(t)
	f.gateway.decline = true

	_, err := f.svc.Checkout(context.Background(), f.request(f.accessoryItem()))
	var payErr *domain.PaymentError
	require.ErrorAs(t, err, &payErr)
	require.Equal(t, "card_declined", payErr.Reason)

	var orders int64
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Count(&orders).Error)
	require.EqualValues(t, 0, orders)

	var tasks int64
	require.NoError(t, f.db.Model(&outboxdomain.Task{}).Count(&tasks).Error)
	require.EqualValues(t, 0, tasks)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "checkout.payment_failed").Count(&audits).Error)
	require.EqualValues(t, 1, audits)
}

func TestCheckoutGatewayFaultIsPaymentError(t *testing.T) {
	f := setupCheckout(t)
	f.gateway.fail = errors.New("gateway timeout")

	_, err := f.svc.Checkout(context.Background(), f.request(f.accessoryItem()))
	var payErr *domain.PaymentError
	require.ErrorAs(t, err, &payErr)
	require.Equal(t, "gateway timeout", payErr.Reason)
}

func TestCheckoutContendedLockIsBusy(t *testing.T) {
	f := setupCheckout(t)
	f.lock.contended = true

	_, err := f.svc.Checkout(context.Background(), f.request(f.accessoryItem()))
	require.ErrorIs(t, err, domain.ErrCheckoutBusy)
	require.Equal(t, 0, f.gateway.calls)
}

func TestCheckoutComplianceRejectionSkipsPayment(t *testing.T) {
	f := setupCheckout(t)

	_, err := f.svc.Checkout(context.Background(), f.request())
	require.ErrorIs(t, err, compliancedomain.ErrEmptyCart)
	require.Equal(t, 0, f.gateway.calls)
	require.Equal(t, 1, f.lock.released)
}

func TestCheckoutPersistsNamedRecipientDealer(t *testing.T) {
	f := setupCheckout(t)
	f.seedVerifiedFFL(t)
	dealerID := f.seedDealer(t)

	req := f.request(f.firearmItem())
	req.FFLRecipientID = &dealerID

	result, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, string(orderdomain.StatusPaid), result.Status)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order).Error)
	require.NotNil(t, order.FFLDealerID)
	require.Equal(t, dealerID, *order.FFLDealerID)
}

func TestCheckoutUnknownRecipientDealerSkipsPayment(t *testing.T) {
	f := setupCheckout(t)

	unknown := f.node.Generate()
	req := f.request(f.firearmItem())
	req.FFLRecipientID = &unknown

	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, ffldomain.ErrDealerNotFound)
	require.Equal(t, 0, f.gateway.calls)
	require.Equal(t, 1, f.lock.released)

	var orders int64
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Count(&orders).Error)
	require.EqualValues(t, 0, orders)
}

func TestCheckoutSnapshotMatchesOrder(t *testing.T) {
	f := setupCheckout(t)

	product := catalogdomain.Product{
		ID:       f.node.Generate(),
		SKU:      "KIT-1",
		MPN:      "KIT-1-MPN",
		UPC:      "764503026920",
		Name:     "Cleaning Kit",
		ImageURL: "https://cdn.example.com/kit.jpg",
	}
	require.NoError(t, f.db.Create(&product).Error)

	result, err := f.svc.Checkout(context.Background(), f.request(f.accessoryItem()))
	require.NoError(t, err)

	var snap snapshotdomain.OrderSnapshot
	require.NoError(t, f.db.First(&snap).Error)
	require.Equal(t, result.OrderID, snap.OrderID.String())
	require.Equal(t, result.TransactionID, snap.TransactionID)
	require.Equal(t, string(orderdomain.StatusPaid), snap.Status)
}
