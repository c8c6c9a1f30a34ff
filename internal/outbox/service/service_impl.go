package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/outbox/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Enqueuer struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Enqueuer {
	return &Enqueuer{
		log:   p.Log.Named("outbox.enqueuer"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Enqueue writes the task inside the caller's transaction so the task commits
// or rolls back together with the order rows it references.
func (e *Enqueuer) Enqueue(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, kind domain.TaskKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	return e.repo.Insert(ctx, tx, &domain.Task{
		ID:        e.genID.Generate(),
		OrderID:   orderID,
		Kind:      kind,
		Payload:   raw,
		Status:    domain.TaskStatusPending,
		Attempts:  0,
		RunAfter:  now,
		CreatedAt: now,
		UpdatedAt: now,
	})
}
