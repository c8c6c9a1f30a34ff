package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/outbox/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *domain.Task) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_tasks (id, order_id, kind, payload, status, attempts, last_error, run_after, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.OrderID,
		task.Kind,
		task.Payload,
		task.Status,
		task.Attempts,
		task.LastError,
		task.RunAfter,
		task.CreatedAt,
		task.UpdatedAt,
	).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM outbox_tasks
		 WHERE status = ? AND run_after <= ?
		 ORDER BY created_at
		 LIMIT ?`,
		domain.TaskStatusPending,
		now,
		limit,
	).Scan(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET status = ?, updated_at = ? WHERE id = ?`,
		domain.TaskStatusSucceeded,
		now,
		id,
	).Error
}

func (r *repo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, runAfter, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		attempts,
		lastError,
		runAfter,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_tasks SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		domain.TaskStatusFailed,
		attempts,
		lastError,
		now,
		id,
	).Error
}
