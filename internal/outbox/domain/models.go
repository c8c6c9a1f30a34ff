package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskKind string

const (
	TaskDistributorSubmit TaskKind = "distributor_submit"
	TaskCRMSync           TaskKind = "crm_sync"
	TaskCRMStageUpdate    TaskKind = "crm_stage_update"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Task is a durable best-effort side effect. Checkout and hold resolution
// enqueue tasks in the same transaction as their order writes; the worker
// executes them with retries so a provider outage can never unwind an
// already-committed payment or order row.
type Task struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrderID   snowflake.ID   `gorm:"not null;index" json:"order_id"`
	Kind      TaskKind       `gorm:"type:text;not null" json:"kind"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Status    TaskStatus     `gorm:"type:text;not null;index" json:"status"`
	Attempts  int            `gorm:"not null;default:0" json:"attempts"`
	LastError string         `gorm:"type:text" json:"last_error,omitempty"`
	RunAfter  time.Time      `gorm:"not null;index" json:"run_after"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "outbox_tasks" }

type DistributorSubmitPayload struct {
	OrderID snowflake.ID `json:"order_id"`
}

type CRMSyncPayload struct {
	OrderID snowflake.ID `json:"order_id"`
	Email   string       `json:"email"`
	Name    string       `json:"name"`
}

type CRMStageUpdatePayload struct {
	OrderID snowflake.ID `json:"order_id"`
	Stage   string       `json:"stage"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) error
	// ListDue returns pending tasks whose run_after has passed, oldest first.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*Task, error)
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, runAfter, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error
}

// Enqueuer is the write-side surface used by checkout and hold resolution.
type Enqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, kind TaskKind, payload any) error
}
