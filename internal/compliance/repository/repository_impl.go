package repository

import (
	"context"

	"github.com/rangefront/armory/internal/compliance/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) (*domain.ComplianceConfig, error) {
	var cfg domain.ComplianceConfig
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM compliance_configs WHERE active = ? ORDER BY created_at DESC LIMIT 1`,
		true,
	).Scan(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) Rotate(ctx context.Context, db *gorm.DB, next *domain.ComplianceConfig) error {
	err := db.WithContext(ctx).Exec(
		`UPDATE compliance_configs SET active = ? WHERE active = ?`,
		false,
		true,
	).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO compliance_configs (
			id, window_days, firearm_limit, multi_firearm_hold_enabled,
			ffl_hold_enabled, active, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		next.ID,
		next.WindowDays,
		next.FirearmLimit,
		next.MultiFirearmHoldEnabled,
		next.FFLHoldEnabled,
		next.Active,
		next.CreatedBy,
		next.CreatedAt,
	).Error
}
