package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordStatus string

const (
	RecordStatusPendingVerification RecordStatus = "Pending Verification"
	RecordStatusVerified            RecordStatus = "Verified"
	RecordStatusExpired             RecordStatus = "Expired"
)

// FFLRecord is a customer's on-file Federal Firearms License. The compliance
// engine treats a record as usable only when verified and not yet expired.
type FFLRecord struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID `gorm:"not null;index" json:"user_id"`
	LicenseNumber string       `gorm:"type:text;not null" json:"license_number"`
	DealerName    string       `gorm:"type:text;not null" json:"dealer_name"`
	Status        RecordStatus `gorm:"type:text;not null" json:"status"`
	ExpiresAt     time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (FFLRecord) TableName() string { return "ffl_records" }

// FFLDealer is a licensed dealer orders can drop-ship to.
type FFLDealer struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"type:text;not null" json:"name"`
	LicenseNumber string       `gorm:"type:text;not null;uniqueIndex" json:"license_number"`
	City          string       `gorm:"type:text" json:"city"`
	State         string       `gorm:"type:text" json:"state"`
	Active        bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (FFLDealer) TableName() string { return "ffl_dealers" }

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *FFLRecord) error
	// FindActiveVerifiedByUser returns the user's verified, unexpired record,
	// or nil when none exists.
	FindActiveVerifiedByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) (*FFLRecord, error)
	FindDealerByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FFLDealer, error)
}

var (
	ErrDealerNotFound = errors.New("ffl_dealer_not_found")
	ErrInvalidRecord  = errors.New("invalid_ffl_record")
)
