package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type AttachFFLRequest struct {
	OrderID  snowflake.ID
	DealerID snowflake.ID
	AdminID  string
	// Verify releases the hold in the same call. When false the dealer is
	// attached pending verification and the order stays held.
	Verify bool
}

type OverrideHoldRequest struct {
	OrderID snowflake.ID
	AdminID string
	Reason  string
}

type ResolutionResult struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Service resolves compliance holds. Release paths move the order to Ready
// To Fulfill; neither operation ever touches payment.
type Service interface {
	// AttachAndVerifyFFL binds a licensed dealer to an FFL-held order and,
	// when the request says verify, releases the hold.
	AttachAndVerifyFFL(ctx context.Context, req AttachFFLRequest) (ResolutionResult, error)

	// OverrideHold releases any hold by explicit admin decision. The reason is
	// mandatory and lands in both the order notes and the audit log.
	OverrideHold(ctx context.Context, req OverrideHoldRequest) (ResolutionResult, error)
}

var (
	ErrNotPendingFFL  = errors.New("order_not_pending_ffl")
	ErrNotOnHold      = errors.New("order_not_on_hold")
	ErrReasonRequired = errors.New("override_reason_required")
)
