package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/rangefront/armory/internal/audit/domain"
	"github.com/rangefront/armory/internal/clock"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	"github.com/rangefront/armory/internal/holds/domain"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	outboxdomain "github.com/rangefront/armory/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	OrderRepo orderdomain.Repository
	FFLRepo   ffldomain.Repository
	Outbox    outboxdomain.Enqueuer
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	orderRepo orderdomain.Repository
	fflRepo   ffldomain.Repository
	outbox    outboxdomain.Enqueuer
	audit     auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("holds.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		orderRepo: p.OrderRepo,
		fflRepo:   p.FFLRepo,
		outbox:    p.Outbox,
		audit:     p.Audit,
	}
}

func (s *Service) AttachAndVerifyFFL(ctx context.Context, req domain.AttachFFLRequest) (domain.ResolutionResult, error) {
	if req.OrderID == 0 {
		return domain.ResolutionResult{}, orderdomain.ErrInvalidID
	}

	dealer, err := s.fflRepo.FindDealerByID(ctx, s.db, req.DealerID)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	if dealer == nil {
		return domain.ResolutionResult{}, ffldomain.ErrDealerNotFound
	}

	status := orderdomain.StatusPendingFFL
	holdReason := orderdomain.HoldReasonFFL
	fflStatus := orderdomain.FFLStatusPendingVerification
	note := fmt.Sprintf("FFL dealer %s (%s) attached, verification pending", dealer.Name, dealer.LicenseNumber)
	if req.Verify {
		status = orderdomain.StatusReadyToFulfill
		holdReason = orderdomain.HoldReasonNone
		fflStatus = orderdomain.FFLStatusVerified
		note = fmt.Sprintf("FFL hold released: dealer %s (%s) attached and verified", dealer.Name, dealer.LicenseNumber)
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrNotFound
		}
		if order.Status != orderdomain.StatusPendingFFL {
			return domain.ErrNotPendingFFL
		}
		if status != order.Status && !orderdomain.CanTransition(order.Status, status) {
			return orderdomain.ErrInvalidTransition
		}

		if err := s.orderRepo.SetFFLResolution(ctx, tx, order.ID, dealer.ID, fflStatus, status, holdReason, now); err != nil {
			return err
		}
		if err := s.orderRepo.AddNote(ctx, tx, &orderdomain.OrderNote{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if !req.Verify {
			return nil
		}
		return s.outbox.Enqueue(ctx, tx, order.ID, outboxdomain.TaskCRMStageUpdate, outboxdomain.CRMStageUpdatePayload{
			OrderID: order.ID,
			Stage:   string(status),
		})
	})
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	_ = s.audit.Record(ctx, auditdomain.ActorTypeAdmin, req.AdminID, "hold.ffl_attached", "order", req.OrderID.String(), map[string]any{
		"dealer_id":      req.DealerID.String(),
		"license_number": dealer.LicenseNumber,
		"verified":       req.Verify,
	})

	s.log.Info("ffl dealer attached",
		zap.Int64("order_id", int64(req.OrderID)),
		zap.Int64("dealer_id", int64(req.DealerID)),
		zap.Bool("verified", req.Verify),
	)
	return domain.ResolutionResult{
		OrderID: req.OrderID.String(),
		Status:  string(status),
	}, nil
}

func (s *Service) OverrideHold(ctx context.Context, req domain.OverrideHoldRequest) (domain.ResolutionResult, error) {
	if req.OrderID == 0 {
		return domain.ResolutionResult{}, orderdomain.ErrInvalidID
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.ResolutionResult{}, domain.ErrReasonRequired
	}

	now := s.clock.Now()
	var previous orderdomain.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrNotFound
		}
		if !order.Status.IsHold() {
			return domain.ErrNotOnHold
		}
		previous = order.Status

		if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, orderdomain.StatusReadyToFulfill, orderdomain.HoldReasonNone, now); err != nil {
			return err
		}
		if err := s.orderRepo.AddNote(ctx, tx, &orderdomain.OrderNote{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			Note:      fmt.Sprintf("Hold overridden by admin %s: %s", req.AdminID, req.Reason),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, order.ID, outboxdomain.TaskCRMStageUpdate, outboxdomain.CRMStageUpdatePayload{
			OrderID: order.ID,
			Stage:   string(orderdomain.StatusReadyToFulfill),
		})
	})
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	_ = s.audit.Record(ctx, auditdomain.ActorTypeAdmin, req.AdminID, "hold.overridden", "order", req.OrderID.String(), map[string]any{
		"previous_status": string(previous),
		"reason":          req.Reason,
	})

	s.log.Info("hold overridden",
		zap.Int64("order_id", int64(req.OrderID)),
		zap.String("previous_status", string(previous)),
	)
	return domain.ResolutionResult{
		OrderID: req.OrderID.String(),
		Status:  string(orderdomain.StatusReadyToFulfill),
	}, nil
}
