package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	fflrepo "github.com/rangefront/armory/internal/ffl/repository"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	orderrepo "github.com/rangefront/armory/internal/order/repository"
	"github.com/rangefront/armory/internal/outbox/domain"
	outboxrepo "github.com/rangefront/armory/internal/outbox/repository"
	"github.com/rangefront/armory/internal/providers/crm"
	"github.com/rangefront/armory/internal/providers/distributor"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	snapshotrepo "github.com/rangefront/armory/internal/snapshot/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubDistributor struct {
	fail     error
	reject   bool
	calls    int
	payloads []distributor.OrderPayload
}

func (d *stubDistributor) SubmitOrder(ctx context.Context, payload distributor.OrderPayload) (distributor.SubmitResult, error) {
	d.calls++
	d.payloads = append(d.payloads, payload)
	if d.fail != nil {
		return distributor.SubmitResult{}, d.fail
	}
	if d.reject {
		return distributor.SubmitResult{Success: false, Error: "item discontinued"}, nil
	}
	return distributor.SubmitResult{Success: true, DistributorOrderNumber: fmt.Sprintf("DIST-%d", d.calls)}, nil
}

type stubCRM struct {
	contactCalls int
	dealCalls    int
	stageCalls   int
	lastStage    string
}

func (c *stubCRM) FindOrCreateContact(ctx context.Context, email, name string) (string, error) {
	c.contactCalls++
	return "contact-1", nil
}

func (c *stubCRM) CreateDeal(ctx context.Context, contactID string, deal crm.DealData) (crm.DealResult, error) {
	c.dealCalls++
	return crm.DealResult{Success: true, DealID: fmt.Sprintf("deal-%d", c.dealCalls)}, nil
}

func (c *stubCRM) UpdateDealStage(ctx context.Context, dealID, stage string) (bool, error) {
	c.stageCalls++
	c.lastStage = stage
	return true, nil
}

type workerFixture struct {
	db          *gorm.DB
	node        *snowflake.Node
	clock       *clock.FakeClock
	distributor *stubDistributor
	crm         *stubCRM
	worker      *Worker
}

func setupWorker(t *testing.T) *workerFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:worker-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
		&orderdomain.OrderNote{},
		&ffldomain.FFLDealer{},
		&snapshotdomain.OrderSnapshot{},
		&domain.Task{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dist := &stubDistributor{}
	crmClient := &stubCRM{}

	w := New(Params{
		LC:          fxtest.NewLifecycle(t),
		Cfg:         config.Config{},
		Fulfillment: &config.FulfillmentConfigHolder{},
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        outboxrepo.Provide(),
		OrderRepo:   orderrepo.Provide(),
		FFLRepo:     fflrepo.Provide(),
		SnapRepo:    snapshotrepo.Provide(),
		Distributor: dist,
		CRM:         crmClient,
	})

	return &workerFixture{db: db, node: node, clock: clk, distributor: dist, crm: crmClient, worker: w}
}

func (f *workerFixture) seedOrder(t *testing.T, status orderdomain.OrderStatus) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	order := orderdomain.Order{
		ID:                   f.node.Generate(),
		UserID:               f.node.Generate(),
		TotalPrice:           599.00,
		Status:               status,
		PaymentTransactionID: "txn-1",
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	line := orderdomain.OrderLine{
		ID:         f.node.Generate(),
		OrderID:    order.ID,
		ProductID:  f.node.Generate(),
		Name:       "Pistol",
		SKU:        "PST-9",
		Quantity:   1,
		UnitPrice:  599.00,
		TotalPrice: 599.00,
		IsFirearm:  true,
		CreatedAt:  now,
	}
	if err := f.db.Create(&line).Error; err != nil {
		t.Fatalf("seed order line: %v", err)
	}
	return order.ID
}

func (f *workerFixture) seedSnapshot(t *testing.T, orderID snowflake.ID) {
	t.Helper()
	now := f.clock.Now()
	items, _ := json.Marshal([]snapshotdomain.SnapshotItem{{
		SKU: "PST-9", UPC: "764503026919", MPN: "PA195S203",
		Name: "Pistol", Qty: 1, UnitPrice: 599.00,
		ImageURL: "https://cdn.example.com/pst9.jpg",
	}})
	customer, _ := json.Marshal(snapshotdomain.Customer{
		Email: "buyer@example.com", Name: "Test Buyer",
		Address: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701",
	})
	outcomes, _ := json.Marshal([]string{snapshotdomain.OutcomeDropShipToFFL})
	minted, _ := json.Marshal(snapshotdomain.MintedOrderNumberSet{
		Main:  "0000042F",
		Parts: []snapshotdomain.MintedPart{{Outcome: snapshotdomain.OutcomeDropShipToFFL, OrderNumber: "0000042F"}},
	})
	snap := snapshotdomain.OrderSnapshot{
		ID:               f.node.Generate(),
		OrderID:          orderID,
		Customer:         customer,
		Items:            items,
		ShippingOutcomes: outcomes,
		Minted:           minted,
		Status:           string(orderdomain.StatusPaid),
		TransactionID:    "txn-1",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := f.db.Create(&snap).Error; err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func (f *workerFixture) seedTask(t *testing.T, orderID snowflake.ID, kind domain.TaskKind, payload any, attempts int) snowflake.ID {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	now := f.clock.Now()
	task := domain.Task{
		ID:        f.node.Generate(),
		OrderID:   orderID,
		Kind:      kind,
		Payload:   raw,
		Status:    domain.TaskStatusPending,
		Attempts:  attempts,
		RunAfter:  now.Add(-time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.db.Create(&task).Error; err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task.ID
}

func (f *workerFixture) task(t *testing.T, id snowflake.ID) domain.Task {
	t.Helper()
	var task domain.Task
	if err := f.db.First(&task, "id = ?", id).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	return task
}

func TestRunOnceSubmitsPaidOrder(t *testing.T) {
	f := setupWorker(t)
	orderID := f.seedOrder(t, orderdomain.StatusPaid)
	f.seedSnapshot(t, orderID)
	taskID := f.seedTask(t, orderID, domain.TaskDistributorSubmit, domain.DistributorSubmitPayload{OrderID: orderID}, 0)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.Equal(t, domain.TaskStatusSucceeded, f.task(t, taskID).Status)
	require.Equal(t, 1, f.distributor.calls)
	require.Equal(t, "0000042F", f.distributor.payloads[0].OrderNumber)
	require.Equal(t, "Test Buyer", f.distributor.payloads[0].ShipTo.Name)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "id = ?", orderID).Error)
	require.Equal(t, orderdomain.StatusProcessing, order.Status)
	require.NotNil(t, order.DistributorOrderNumber)
	require.Equal(t, "DIST-1", *order.DistributorOrderNumber)
}

func TestRunOnceShipsToAttachedDealer(t *testing.T) {
	f := setupWorker(t)
	orderID := f.seedOrder(t, orderdomain.StatusPaid)
	f.seedSnapshot(t, orderID)

	dealer := ffldomain.FFLDealer{
		ID:            f.node.Generate(),
		Name:          "Hill Country Firearms",
		LicenseNumber: "5-74-123-45-6C-78901",
		City:          "Dripping Springs",
		State:         "TX",
		Active:        true,
		CreatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&dealer).Error)
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Where("id = ?", orderID).
		Update("ffl_dealer_id", dealer.ID).Error)

	f.seedTask(t, orderID, domain.TaskDistributorSubmit, domain.DistributorSubmitPayload{OrderID: orderID}, 0)
	require.NoError(t, f.worker.RunOnce(context.Background()))

	shipTo := f.distributor.payloads[0].ShipTo
	require.Equal(t, "Hill Country Firearms", shipTo.Name)
	require.Equal(t, "5-74-123-45-6C-78901", shipTo.FFLNumber)
	require.Equal(t, "Dripping Springs", shipTo.City)
}

func TestRunOnceSkipsHeldOrder(t *testing.T) {
	f := setupWorker(t)
	orderID := f.seedOrder(t, orderdomain.StatusPendingFFL)
	f.seedSnapshot(t, orderID)
	taskID := f.seedTask(t, orderID, domain.TaskDistributorSubmit, domain.DistributorSubmitPayload{OrderID: orderID}, 0)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	// The task resolves without touching the distributor.
	require.Equal(t, domain.TaskStatusSucceeded, f.task(t, taskID).Status)
	require.Equal(t, 0, f.distributor.calls)
}

func TestRunOnceRetriesWithBackoff(t *testing.T) {
	f := setupWorker(t)
	f.distributor.fail = errors.New("connection refused")
	orderID := f.seedOrder(t, orderdomain.StatusPaid)
	f.seedSnapshot(t, orderID)
	taskID := f.seedTask(t, orderID, domain.TaskDistributorSubmit, domain.DistributorSubmitPayload{OrderID: orderID}, 0)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	task := f.task(t, taskID)
	require.Equal(t, domain.TaskStatusPending, task.Status)
	require.Equal(t, 1, task.Attempts)
	require.Equal(t, "connection refused", task.LastError)
	require.True(t, task.RunAfter.Equal(f.clock.Now().Add(30*time.Second)), "run_after %s", task.RunAfter)

	// Not due yet on the next pass.
	require.NoError(t, f.worker.RunOnce(context.Background()))
	require.Equal(t, 1, f.distributor.calls)

	// Second failure doubles the delay.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.worker.RunOnce(context.Background()))
	task = f.task(t, taskID)
	require.Equal(t, 2, task.Attempts)
	require.True(t, task.RunAfter.Equal(f.clock.Now().Add(time.Minute)), "run_after %s", task.RunAfter)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	require.Equal(t, 30*time.Second, retryDelay(1))
	require.Equal(t, time.Minute, retryDelay(2))
	require.Equal(t, 32*time.Minute, retryDelay(7))
	require.Equal(t, time.Hour, retryDelay(8))
	require.Equal(t, time.Hour, retryDelay(9))
	// Attempt counts far past the cap must not overflow the shift.
	require.Equal(t, time.Hour, retryDelay(40))
	require.Equal(t, time.Hour, retryDelay(10000))
	require.Equal(t, 30*time.Second, retryDelay(0))
}

func TestRunOnceEscalatesAfterMaxAttempts(t *testing.T) {
	f := setupWorker(t)
	f.distributor.reject = true
	orderID := f.seedOrder(t, orderdomain.StatusPaid)
	f.seedSnapshot(t, orderID)
	// One attempt away from the default cap of 8.
	taskID := f.seedTask(t, orderID, domain.TaskDistributorSubmit, domain.DistributorSubmitPayload{OrderID: orderID}, 7)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	task := f.task(t, taskID)
	require.Equal(t, domain.TaskStatusFailed, task.Status)
	require.Equal(t, 8, task.Attempts)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "id = ?", orderID).Error)
	require.Equal(t, orderdomain.StatusManualProcessingRequired, order.Status)

	var note orderdomain.OrderNote
	require.NoError(t, f.db.First(&note, "order_id = ?", orderID).Error)
	require.Contains(t, note.Note, "Distributor submission failed after retries")
}

func TestRunOnceSyncsCRMOnce(t *testing.T) {
	f := setupWorker(t)
	orderID := f.seedOrder(t, orderdomain.StatusPaid)
	f.seedSnapshot(t, orderID)
	taskID := f.seedTask(t, orderID, domain.TaskCRMSync, domain.CRMSyncPayload{
		OrderID: orderID, Email: "buyer@example.com", Name: "Test Buyer",
	}, 0)

	require.NoError(t, f.worker.RunOnce(context.Background()))

	require.Equal(t, domain.TaskStatusSucceeded, f.task(t, taskID).Status)
	require.Equal(t, 1, f.crm.dealCalls)

	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "id = ?", orderID).Error)
	require.NotNil(t, order.ExternalDealID)
	require.Equal(t, "deal-1", *order.ExternalDealID)

	// A duplicate sync task resolves without a second CRM call.
	dupID := f.seedTask(t, orderID, domain.TaskCRMSync, domain.CRMSyncPayload{
		OrderID: orderID, Email: "buyer@example.com", Name: "Test Buyer",
	}, 0)
	require.NoError(t, f.worker.RunOnce(context.Background()))
	require.Equal(t, domain.TaskStatusSucceeded, f.task(t, dupID).Status)
	require.Equal(t, 1, f.crm.dealCalls)
}

func TestRunOnceStageUpdateWaitsForDeal(t *testing.T) {
	f := setupWorker(t)
	orderID := f.seedOrder(t, orderdomain.StatusReadyToFulfill)
	taskID := f.seedTask(t, orderID, domain.TaskCRMStageUpdate, domain.CRMStageUpdatePayload{
		OrderID: orderID, Stage: string(orderdomain.StatusReadyToFulfill),
	}, 0)

	// No deal yet: the task stays pending for a later pass.
	require.NoError(t, f.worker.RunOnce(context.Background()))
	task := f.task(t, taskID)
	require.Equal(t, domain.TaskStatusPending, task.Status)
	require.Equal(t, 1, task.Attempts)
	require.Equal(t, 0, f.crm.stageCalls)

	dealID := "deal-9"
	require.NoError(t, f.db.Model(&orderdomain.Order{}).Where("id = ?", orderID).
		Update("external_deal_id", dealID).Error)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.worker.RunOnce(context.Background()))
	require.Equal(t, domain.TaskStatusSucceeded, f.task(t, taskID).Status)
	require.Equal(t, string(orderdomain.StatusReadyToFulfill), f.crm.lastStage)
}
