package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/rangefront/armory/internal/account/domain"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/compliance/domain"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	FFLRepo     ffldomain.Repository
	OrderRepo   orderdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
	fflRepo     ffldomain.Repository
	orderRepo   orderdomain.Repository

	mu     sync.RWMutex
	cached *domain.ComplianceConfig
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("compliance.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		fflRepo:     p.FFLRepo,
		orderRepo:   p.OrderRepo,
	}
}

func (s *Service) Check(ctx context.Context, userID snowflake.ID, items []domain.CartItem) (domain.ComplianceCheckResult, error) {
	if len(items) == 0 {
		return domain.ComplianceCheckResult{}, domain.ErrEmptyCart
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.ComplianceCheckResult{}, domain.ErrInvalidQuantity
		}
		if item.UnitPrice < 0 {
			return domain.ComplianceCheckResult{}, domain.ErrInvalidUnitPrice
		}
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return domain.ComplianceCheckResult{}, err
	}
	if account == nil {
		return domain.ComplianceCheckResult{}, domain.ErrUnknownUser
	}

	cfg, err := s.activeConfig(ctx)
	if err != nil {
		return domain.ComplianceCheckResult{}, err
	}

	result := domain.ComplianceCheckResult{
		HoldType:      domain.HoldTypeNone,
		WindowDays:    cfg.WindowDays,
		LimitQuantity: cfg.FirearmLimit,
	}

	cartFirearmCount := 0
	for _, item := range items {
		if item.IsFirearm || item.RequiresFFL {
			result.HasFirearms = true
			cartFirearmCount += item.Quantity
		}
	}
	if !result.HasFirearms {
		return result, nil
	}
	result.CartFirearmCount = cartFirearmCount

	now := s.clock.Now()

	// FFL-missing wins over the window limit: a held-for-FFL order cannot
	// legally ship regardless of quantity.
	if cfg.FFLHoldEnabled {
		record, err := s.fflRepo.FindActiveVerifiedByUser(ctx, s.db, userID, now)
		if err != nil {
			return domain.ComplianceCheckResult{}, err
		}
		if record == nil {
			result.RequiresHold = true
			result.HoldType = domain.HoldTypeFFL
			result.Reason = "No verified FFL on file"
			// Window counts still populated for audit/display.
			if cfg.MultiFirearmHoldEnabled {
				past, err := s.windowCount(ctx, userID, cfg.WindowDays, now)
				if err != nil {
					return domain.ComplianceCheckResult{}, err
				}
				result.PastFirearmCountInWindow = past
			}
			return result, nil
		}
	}

	if cfg.MultiFirearmHoldEnabled {
		past, err := s.windowCount(ctx, userID, cfg.WindowDays, now)
		if err != nil {
			return domain.ComplianceCheckResult{}, err
		}
		result.PastFirearmCountInWindow = past

		if past+cartFirearmCount >= cfg.FirearmLimit {
			result.RequiresHold = true
			result.HoldType = domain.HoldTypeMultiFirearm
			result.Reason = "Firearm purchase limit reached for rolling window"
			return result, nil
		}
	}

	return result, nil
}

func (s *Service) windowCount(ctx context.Context, userID snowflake.ID, windowDays int, now time.Time) (int, error) {
	since := now.AddDate(0, 0, -windowDays)
	return s.orderRepo.SumFirearmQuantityInWindow(ctx, s.db, userID, since)
}

func (s *Service) ActiveConfig(ctx context.Context) (domain.ComplianceConfig, error) {
	cfg, err := s.activeConfig(ctx)
	if err != nil {
		return domain.ComplianceConfig{}, err
	}
	return *cfg, nil
}

func (s *Service) activeConfig(ctx context.Context) (*domain.ComplianceConfig, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	cfg, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, domain.ErrNoActiveConfig
	}

	s.mu.Lock()
	s.cached = cfg
	s.mu.Unlock()
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, req domain.UpdateConfigRequest) (domain.ComplianceConfig, error) {
	if req.WindowDays <= 0 || req.FirearmLimit <= 0 {
		return domain.ComplianceConfig{}, domain.ErrInvalidConfig
	}

	next := domain.ComplianceConfig{
		ID:                      s.genID.Generate(),
		WindowDays:              req.WindowDays,
		FirearmLimit:            req.FirearmLimit,
		MultiFirearmHoldEnabled: req.MultiFirearmHoldEnabled,
		FFLHoldEnabled:          req.FFLHoldEnabled,
		Active:                  true,
		CreatedBy:               req.UpdatedBy,
		CreatedAt:               s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Rotate(ctx, tx, &next)
	})
	if err != nil {
		return domain.ComplianceConfig{}, err
	}

	s.mu.Lock()
	s.cached = &next
	s.mu.Unlock()

	s.log.Info("compliance config rotated",
		zap.Int("window_days", next.WindowDays),
		zap.Int("firearm_limit", next.FirearmLimit),
		zap.Bool("ffl_hold_enabled", next.FFLHoldEnabled),
		zap.Bool("multi_firearm_hold_enabled", next.MultiFirearmHoldEnabled),
	)
	return next, nil
}
