package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	auditdomain "github.com/rangefront/armory/internal/audit/domain"
	catalogdomain "github.com/rangefront/armory/internal/catalog/domain"
	"github.com/rangefront/armory/internal/checkout/domain"
	"github.com/rangefront/armory/internal/clock"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	"github.com/rangefront/armory/internal/locks"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	outboxdomain "github.com/rangefront/armory/internal/outbox/domain"
	"github.com/rangefront/armory/internal/providers/payment"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "armory_checkouts_total",
	Help: "Checkout attempts, by outcome.",
}, []string{"outcome"})

const userLockTTL = 30 * time.Second

type Params struct {
	fx.In

	Fulfillment *config.FulfillmentConfigHolder
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Locker      locks.Lock
	Compliance  compliancedomain.Service
	OrderRepo   orderdomain.Repository
	CatalogRepo catalogdomain.Repository
	FFLRepo     ffldomain.Repository
	Snapshots   snapshotdomain.Service
	Outbox      outboxdomain.Enqueuer
	Gateway     payment.Gateway
	Audit       auditdomain.Service
}

type Service struct {
	fulfillment *config.FulfillmentConfigHolder
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	locker      locks.Lock
	compliance  compliancedomain.Service
	orderRepo   orderdomain.Repository
	catalogRepo catalogdomain.Repository
	fflRepo     ffldomain.Repository
	snapshots   snapshotdomain.Service
	outbox      outboxdomain.Enqueuer
	gateway     payment.Gateway
	audit       auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		fulfillment: p.Fulfillment,
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		locker:      p.Locker,
		compliance:  p.Compliance,
		orderRepo:   p.OrderRepo,
		catalogRepo: p.CatalogRepo,
		fflRepo:     p.FFLRepo,
		snapshots:   p.Snapshots,
		outbox:      p.Outbox,
		gateway:     p.Gateway,
		audit:       p.Audit,
	}
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResult, error) {
	// The user lock spans the compliance read and the order insert so two
	// concurrent checkouts cannot both pass the rolling-window check against
	// the same stale count.
	lockKey := fmt.Sprintf("checkout:user:%d", req.UserID)
	token, acquired, err := s.locker.TryLock(ctx, lockKey, userLockTTL)
	if err != nil {
		return domain.CheckoutResult{}, err
	}
	if !acquired {
		checkouts.WithLabelValues("busy").Inc()
		return domain.CheckoutResult{}, domain.ErrCheckoutBusy
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("checkout lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	decision, err := s.compliance.Check(ctx, req.UserID, cartItems(req.Items))
	if err != nil {
		checkouts.WithLabelValues("rejected").Inc()
		return domain.CheckoutResult{}, err
	}

	// A named recipient dealer is validated before any money moves.
	if req.FFLRecipientID != nil {
		dealer, err := s.fflRepo.FindDealerByID(ctx, s.db, *req.FFLRecipientID)
		if err != nil {
			return domain.CheckoutResult{}, err
		}
		if dealer == nil {
			checkouts.WithLabelValues("rejected").Inc()
			return domain.CheckoutResult{}, ffldomain.ErrDealerNotFound
		}
	}

	total := orderTotal(req.Items)

	fc := s.fulfillment.Current()
	payCtx, cancel := context.WithTimeout(ctx, fc.PaymentTimeout)
	capture, err := s.gateway.AuthorizeAndCapture(payCtx, total, req.Card, payment.BillingInfo{
		Email:      req.Customer.Email,
		Name:       req.Customer.Name,
		Address:    req.Customer.Address,
		City:       req.Customer.City,
		State:      req.Customer.State,
		PostalCode: req.Customer.PostalCode,
	})
	cancel()
	if err != nil || !capture.Success {
		reason := capture.Error
		if err != nil {
			reason = err.Error()
		}
		checkouts.WithLabelValues("payment_failed").Inc()
		_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, "", "checkout.payment_failed", "user", req.UserID.String(), map[string]any{
			"amount": total,
			"reason": reason,
		})
		return domain.CheckoutResult{}, &domain.PaymentError{Reason: reason}
	}

	status, holdReason := initialStatus(decision)
	now := s.clock.Now()

	order := &orderdomain.Order{
		ID:                   s.genID.Generate(),
		UserID:               req.UserID,
		TotalPrice:           total,
		Status:               status,
		HoldReason:           holdReason,
		FFLRequired:          decision.HasFirearms,
		FFLStatus:            fflStatus(decision),
		FFLDealerID:          req.FFLRecipientID,
		FirearmsWindowCount:  decision.PastFirearmCountInWindow,
		WindowDays:           decision.WindowDays,
		LimitQty:             decision.LimitQuantity,
		PaymentTransactionID: capture.TransactionID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	lines := make([]orderdomain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, orderdomain.OrderLine{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			SKU:        item.SKU,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: round2(float64(item.Quantity) * item.UnitPrice),
			IsFirearm:  item.IsFirearm || item.RequiresFFL,
			CreatedAt:  now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Insert(ctx, tx, order, lines); err != nil {
			return err
		}
		if err := s.outbox.Enqueue(ctx, tx, order.ID, outboxdomain.TaskCRMSync, outboxdomain.CRMSyncPayload{
			OrderID: order.ID,
			Email:   req.Customer.Email,
			Name:    req.Customer.Name,
		}); err != nil {
			return err
		}
		if status == orderdomain.StatusPaid {
			return s.outbox.Enqueue(ctx, tx, order.ID, outboxdomain.TaskDistributorSubmit, outboxdomain.DistributorSubmitPayload{
				OrderID: order.ID,
			})
		}
		return nil
	})
	if err != nil {
		// Money has moved but the order write failed. This is the one state
		// that needs a human immediately.
		s.log.Error("order persistence failed after capture",
			zap.Int64("user_id", int64(req.UserID)),
			zap.String("transaction_id", capture.TransactionID),
			zap.Error(err),
		)
		_ = s.audit.Record(ctx, auditdomain.ActorTypeSystem, "", "checkout.orphaned_capture", "transaction", capture.TransactionID, map[string]any{
			"user_id": req.UserID.String(),
			"amount":  total,
		})
		return domain.CheckoutResult{}, err
	}

	checkouts.WithLabelValues(checkoutOutcome(status)).Inc()

	result := domain.CheckoutResult{
		Success:       true,
		OrderID:       order.ID.String(),
		Status:        string(status),
		TransactionID: capture.TransactionID,
	}
	if decision.RequiresHold {
		result.Hold = &domain.HoldInfo{
			Type:   string(decision.HoldType),
			Reason: decision.Reason,
		}
	}

	// Snapshot write is best-effort: the order is already durable, and the
	// summary read path re-mints defensively if this fails.
	minted, err := s.snapshots.WriteSnapshot(ctx, snapshotdomain.WriteSnapshotRequest{
		OrderID:          order.ID,
		Items:            s.snapshotItems(ctx, req.Items),
		ShippingOutcomes: shippingOutcomes(req.Items),
		Customer:         req.Customer,
		TransactionID:    capture.TransactionID,
		Status:           string(status),
	})
	if err != nil {
		s.log.Warn("snapshot write failed during checkout",
			zap.Int64("order_id", int64(order.ID)),
			zap.Error(err),
		)
	} else {
		result.OrderNumber = minted.Main
	}

	return result, nil
}

func cartItems(items []domain.CheckoutItem) []compliancedomain.CartItem {
	out := make([]compliancedomain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, compliancedomain.CartItem{
			ID:          item.ProductID,
			Name:        item.Name,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			IsFirearm:   item.IsFirearm,
			RequiresFFL: item.RequiresFFL,
		})
	}
	return out
}

func initialStatus(decision compliancedomain.ComplianceCheckResult) (orderdomain.OrderStatus, orderdomain.HoldReason) {
	switch decision.HoldType {
	case compliancedomain.HoldTypeFFL:
		return orderdomain.StatusPendingFFL, orderdomain.HoldReasonFFL
	case compliancedomain.HoldTypeMultiFirearm:
		return orderdomain.StatusMultiFirearmHold, orderdomain.HoldReasonMultiFirearm
	default:
		return orderdomain.StatusPaid, orderdomain.HoldReasonNone
	}
}

func fflStatus(decision compliancedomain.ComplianceCheckResult) orderdomain.FFLStatus {
	if !decision.HasFirearms {
		return orderdomain.FFLStatusVerified
	}
	if decision.HoldType == compliancedomain.HoldTypeFFL {
		return orderdomain.FFLStatusMissing
	}
	return orderdomain.FFLStatusVerified
}

func checkoutOutcome(status orderdomain.OrderStatus) string {
	if status.IsHold() {
		return "held"
	}
	return "paid"
}

// snapshotItems builds the canonical snapshot shape, back-filling identifiers
// from the catalog. A miss stores an UNKNOWN placeholder; the summary read
// path retries the lookup later.
func (s *Service) snapshotItems(ctx context.Context, items []domain.CheckoutItem) []snapshotdomain.SnapshotItem {
	out := make([]snapshotdomain.SnapshotItem, 0, len(items))
	for i, item := range items {
		snap := snapshotdomain.SnapshotItem{
			SKU:       item.SKU,
			UPC:       fmt.Sprintf("UNKNOWN-%d", i),
			MPN:       fmt.Sprintf("UNKNOWN-%d", i),
			Name:      item.Name,
			Qty:       item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  fmt.Sprintf("UNKNOWN-%d", i),
		}

		product, err := s.catalogRepo.GetByMPNOrSKU(ctx, s.db, item.SKU)
		if err != nil {
			s.log.Warn("catalog lookup failed at checkout", zap.String("sku", item.SKU), zap.Error(err))
		}
		if product != nil {
			if product.UPC != "" {
				snap.UPC = product.UPC
			}
			if product.MPN != "" {
				snap.MPN = product.MPN
			}
			if product.ImageURL != "" {
				snap.ImageURL = product.ImageURL
			}
			if snap.Name == "" {
				snap.Name = product.Name
			}
		}
		out = append(out, snap)
	}
	return out
}

// shippingOutcomes classifies each line into its receiver bucket: regulated
// lines route through a licensed dealer, everything else ships from our
// warehouse.
func shippingOutcomes(items []domain.CheckoutItem) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		outcome := snapshotdomain.OutcomeInHouseToCustomer
		if item.IsFirearm || item.RequiresFFL {
			outcome = snapshotdomain.OutcomeDropShipToFFL
		}
		if !seen[outcome] {
			seen[outcome] = true
			out = append(out, outcome)
		}
	}
	return out
}

func orderTotal(items []domain.CheckoutItem) float64 {
	var total float64
	for _, item := range items {
		total += round2(float64(item.Quantity) * item.UnitPrice)
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
