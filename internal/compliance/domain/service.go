package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service is the compliance-hold decision procedure. Check has no side
// effects and is never cached: the rolling-window count depends on order
// history that changes between calls.
type Service interface {
	Check(ctx context.Context, userID snowflake.ID, items []CartItem) (ComplianceCheckResult, error)
	ActiveConfig(ctx context.Context) (ComplianceConfig, error)
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) (ComplianceConfig, error)
}
