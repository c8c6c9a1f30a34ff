package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	"github.com/rangefront/armory/internal/outbox/domain"
	"github.com/rangefront/armory/internal/providers/crm"
	"github.com/rangefront/armory/internal/providers/distributor"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "armory_outbox_tasks_total",
	Help: "Outbox tasks processed, by kind and result.",
}, []string{"kind", "result"})

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = time.Hour
)

type Params struct {
	fx.In

	LC          fx.Lifecycle
	Cfg         config.Config
	Fulfillment *config.FulfillmentConfigHolder
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	OrderRepo   orderdomain.Repository
	FFLRepo     ffldomain.Repository
	SnapRepo    snapshotdomain.Repository
	Distributor distributor.Client
	CRM         crm.Client
}

// Worker drains the outbox: due tasks are executed against the external
// providers with exponential backoff, so a distributor or CRM outage delays
// side effects instead of losing them.
type Worker struct {
	cfg         config.Config
	fulfillment *config.FulfillmentConfigHolder
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	orderRepo   orderdomain.Repository
	fflRepo     ffldomain.Repository
	snapRepo    snapshotdomain.Repository
	distributor distributor.Client
	crm         crm.Client

	stop chan struct{}
	done chan struct{}
}

func New(p Params) *Worker {
	w := &Worker{
		cfg:         p.Cfg,
		fulfillment: p.Fulfillment,
		db:          p.DB,
		log:         p.Log.Named("outbox.worker"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		orderRepo:   p.OrderRepo,
		fflRepo:     p.FFLRepo,
		snapRepo:    p.SnapRepo,
		distributor: p.Distributor,
		crm:         p.CRM,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if p.Cfg.OutboxWorkerEnabled {
		p.LC.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go w.run()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				close(w.stop)
				select {
				case <-w.done:
				case <-ctx.Done():
				}
				return nil
			},
		})
	}
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	w.log.Info("outbox worker started")

	for {
		interval := w.fulfillment.Current().OutboxPollInterval
		select {
		case <-w.stop:
			w.log.Info("outbox worker stopped")
			return
		case <-time.After(interval):
			ctx, cancel := context.WithTimeout(context.Background(), interval*2)
			if err := w.RunOnce(ctx); err != nil {
				w.log.Error("outbox pass failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// RunOnce executes a single drain pass over the due tasks.
func (w *Worker) RunOnce(ctx context.Context) error {
	fc := w.fulfillment.Current()
	tasks, err := w.repo.ListDue(ctx, w.db, w.clock.Now(), fc.OutboxBatchSize)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		w.execute(ctx, task, fc)
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, task *domain.Task, fc config.FulfillmentConfig) {
	err := w.dispatch(ctx, task, fc)
	now := w.clock.Now()

	if err == nil {
		tasksProcessed.WithLabelValues(string(task.Kind), "succeeded").Inc()
		if err := w.repo.MarkSucceeded(ctx, w.db, task.ID, now); err != nil {
			w.log.Error("failed to mark task succeeded", zap.Int64("task_id", int64(task.ID)), zap.Error(err))
		}
		return
	}

	attempts := task.Attempts + 1
	w.log.Warn("outbox task attempt failed",
		zap.Int64("task_id", int64(task.ID)),
		zap.Int64("order_id", int64(task.OrderID)),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)

	if attempts >= fc.OutboxMaxAttempts {
		tasksProcessed.WithLabelValues(string(task.Kind), "failed").Inc()
		if markErr := w.repo.MarkFailed(ctx, w.db, task.ID, attempts, err.Error(), now); markErr != nil {
			w.log.Error("failed to mark task failed", zap.Int64("task_id", int64(task.ID)), zap.Error(markErr))
		}
		if task.Kind == domain.TaskDistributorSubmit {
			w.escalateToManual(ctx, task.OrderID, err)
		}
		return
	}

	tasksProcessed.WithLabelValues(string(task.Kind), "retried").Inc()
	if markErr := w.repo.MarkRetry(ctx, w.db, task.ID, attempts, err.Error(), now.Add(retryDelay(attempts)), now); markErr != nil {
		w.log.Error("failed to mark task for retry", zap.Int64("task_id", int64(task.ID)), zap.Error(markErr))
	}
}

// retryDelay doubles per attempt from retryBaseDelay, capped at retryMaxDelay.
// The shift amount is bounded before shifting so large attempt counts cannot
// overflow the duration.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 8 {
		return retryMaxDelay
	}
	delay := retryBaseDelay << shift
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

func (w *Worker) dispatch(ctx context.Context, task *domain.Task, fc config.FulfillmentConfig) error {
	switch task.Kind {
	case domain.TaskDistributorSubmit:
		return w.submitDistributor(ctx, task, fc)
	case domain.TaskCRMSync:
		return w.syncCRM(ctx, task, fc)
	case domain.TaskCRMStageUpdate:
		return w.updateCRMStage(ctx, task, fc)
	default:
		return fmt.Errorf("unknown task kind: %q", task.Kind)
	}
}

// escalateToManual flags the order for humans after the distributor retries
// are exhausted. The order itself stays paid and intact.
func (w *Worker) escalateToManual(ctx context.Context, orderID snowflake.ID, cause error) {
	now := w.clock.Now()
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := w.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil || !orderdomain.CanTransition(order.Status, orderdomain.StatusManualProcessingRequired) {
			return nil
		}
		if err := w.orderRepo.UpdateStatus(ctx, tx, orderID, orderdomain.StatusManualProcessingRequired, order.HoldReason, now); err != nil {
			return err
		}
		return w.orderRepo.AddNote(ctx, tx, &orderdomain.OrderNote{
			ID:        w.genID.Generate(),
			OrderID:   orderID,
			Note:      fmt.Sprintf("Distributor submission failed after retries: %s", cause.Error()),
			CreatedAt: now,
		})
	})
	if err != nil {
		w.log.Error("failed to escalate order to manual processing",
			zap.Int64("order_id", int64(orderID)),
			zap.Error(err),
		)
	}
}

func (w *Worker) submitDistributor(ctx context.Context, task *domain.Task, fc config.FulfillmentConfig) error {
	var payload domain.DistributorSubmitPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return err
	}

	order, err := w.orderRepo.FindByID(ctx, w.db, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %d not found", payload.OrderID)
	}
	// Held, cancelled, or already-submitted orders are terminal for this task.
	if order.Status != orderdomain.StatusPaid {
		w.log.Info("skipping distributor submit, order not in Paid",
			zap.Int64("order_id", int64(order.ID)),
			zap.String("status", string(order.Status)),
		)
		return nil
	}

	lines, err := w.orderRepo.ListLines(ctx, w.db, order.ID)
	if err != nil {
		return err
	}

	orderNumber, shipTo, err := w.shippingDetails(ctx, order)
	if err != nil {
		return err
	}

	payloadLines := make([]distributor.PayloadLine, 0, len(lines))
	for _, line := range lines {
		payloadLines = append(payloadLines, distributor.PayloadLine{
			SKU:      line.SKU,
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.UnitPrice,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, fc.DistributorTimeout)
	defer cancel()

	result, err := w.distributor.SubmitOrder(callCtx, distributor.OrderPayload{
		OrderNumber: orderNumber,
		Lines:       payloadLines,
		ShipTo:      shipTo,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("distributor rejected order: %s", result.Error)
	}

	return w.orderRepo.SetDistributorResult(ctx, w.db, order.ID, orderdomain.StatusProcessing, result.DistributorOrderNumber, w.clock.Now())
}

// shippingDetails resolves the minted order number and the ship-to block from
// the order snapshot, preferring the FFL dealer when one is attached.
func (w *Worker) shippingDetails(ctx context.Context, order *orderdomain.Order) (string, distributor.ShipTo, error) {
	snap, err := w.snapRepo.FindByOrderID(ctx, w.db, order.ID)
	if err != nil {
		return "", distributor.ShipTo{}, err
	}
	if snap == nil {
		return "", distributor.ShipTo{}, fmt.Errorf("no snapshot for order %d", order.ID)
	}

	var minted snapshotdomain.MintedOrderNumberSet
	if err := json.Unmarshal(snap.Minted, &minted); err != nil {
		return "", distributor.ShipTo{}, err
	}
	if minted.IsZero() {
		return "", distributor.ShipTo{}, fmt.Errorf("order %d has no minted order number yet", order.ID)
	}

	var customer snapshotdomain.Customer
	if err := json.Unmarshal(snap.Customer, &customer); err != nil {
		return "", distributor.ShipTo{}, err
	}

	shipTo := distributor.ShipTo{
		Name:       customer.Name,
		Address:    customer.Address,
		City:       customer.City,
		State:      customer.State,
		PostalCode: customer.PostalCode,
	}
	if order.FFLDealerID != nil {
		dealer, err := w.fflRepo.FindDealerByID(ctx, w.db, *order.FFLDealerID)
		if err != nil {
			return "", distributor.ShipTo{}, err
		}
		if dealer != nil {
			shipTo.Name = dealer.Name
			shipTo.City = dealer.City
			shipTo.State = dealer.State
			shipTo.FFLNumber = dealer.LicenseNumber
		}
	}
	return minted.Main, shipTo, nil
}

func (w *Worker) syncCRM(ctx context.Context, task *domain.Task, fc config.FulfillmentConfig) error {
	var payload domain.CRMSyncPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return err
	}

	order, err := w.orderRepo.FindByID(ctx, w.db, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %d not found", payload.OrderID)
	}
	if order.ExternalDealID != nil {
		return nil
	}

	snap, err := w.snapRepo.FindByOrderID(ctx, w.db, order.ID)
	if err != nil {
		return err
	}
	orderNumber := ""
	if snap != nil {
		var minted snapshotdomain.MintedOrderNumberSet
		if err := json.Unmarshal(snap.Minted, &minted); err == nil {
			orderNumber = minted.Main
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, fc.CRMTimeout)
	defer cancel()

	contactID, err := w.crm.FindOrCreateContact(callCtx, payload.Email, payload.Name)
	if err != nil {
		return err
	}

	result, err := w.crm.CreateDeal(callCtx, contactID, crm.DealData{
		OrderNumber: orderNumber,
		Amount:      order.TotalPrice,
		Stage:       string(order.Status),
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("crm rejected deal: %s", result.Error)
	}

	return w.orderRepo.SetExternalDealID(ctx, w.db, order.ID, result.DealID, w.clock.Now())
}

func (w *Worker) updateCRMStage(ctx context.Context, task *domain.Task, fc config.FulfillmentConfig) error {
	var payload domain.CRMStageUpdatePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return err
	}

	order, err := w.orderRepo.FindByID(ctx, w.db, payload.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("order %d not found", payload.OrderID)
	}
	if order.ExternalDealID == nil {
		// The crm_sync task has not landed yet; retry after it does.
		return fmt.Errorf("order %d has no crm deal yet", payload.OrderID)
	}

	callCtx, cancel := context.WithTimeout(ctx, fc.CRMTimeout)
	defer cancel()

	ok, err := w.crm.UpdateDealStage(callCtx, *order.ExternalDealID, payload.Stage)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("crm stage update rejected for deal %s", *order.ExternalDealID)
	}
	return nil
}
