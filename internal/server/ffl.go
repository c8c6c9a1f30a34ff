package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
)

type createFFLRecordRequest struct {
	UserID        string    `json:"userId"`
	LicenseNumber string    `json:"licenseNumber"`
	DealerName    string    `json:"dealerName"`
	Verified      bool      `json:"verified"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *Server) CreateFFLRecord(c *gin.Context) {
	var req createFFLRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	userID, err := snowflake.ParseString(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "userId must be a valid id"))
		return
	}
	if strings.TrimSpace(req.LicenseNumber) == "" {
		AbortWithError(c, newValidationError("licenseNumber", "required", "licenseNumber must not be empty"))
		return
	}
	if req.ExpiresAt.IsZero() || !req.ExpiresAt.After(time.Now().UTC()) {
		AbortWithError(c, newValidationError("expiresAt", "invalid_expiry", "expiresAt must be in the future"))
		return
	}

	status := ffldomain.RecordStatusPendingVerification
	if req.Verified {
		status = ffldomain.RecordStatusVerified
	}

	now := time.Now().UTC()
	record := &ffldomain.FFLRecord{
		ID:            s.genID.Generate(),
		UserID:        userID,
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		DealerName:    strings.TrimSpace(req.DealerName),
		Status:        status,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.fflRepo.InsertRecord(c.Request.Context(), s.db, record); err != nil {
		AbortWithError(c, err)
		return
	}

	_ = s.auditSvc.Record(c.Request.Context(), "admin", adminID(c), "ffl_record.created", "ffl_record", record.ID.String(), map[string]any{
		"user_id": userID.String(),
		"status":  string(status),
	})

	c.JSON(http.StatusCreated, record)
}
