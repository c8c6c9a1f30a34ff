package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/ffl/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.FFLRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO ffl_records (id, user_id, license_number, dealer_name, status, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.LicenseNumber,
		record.DealerName,
		record.Status,
		record.ExpiresAt,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindActiveVerifiedByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*domain.FFLRecord, error) {
	var record domain.FFLRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM ffl_records
		 WHERE user_id = ? AND status = ? AND expires_at > ?
		 ORDER BY expires_at DESC
		 LIMIT 1`,
		userID,
		domain.RecordStatusVerified,
		now,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindDealerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FFLDealer, error) {
	var dealer domain.FFLDealer
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM ffl_dealers WHERE id = ? AND active = ?`,
		id,
		true,
	).Scan(&dealer).Error
	if err != nil {
		return nil, err
	}
	if dealer.ID == 0 {
		return nil, nil
	}
	return &dealer, nil
}
