package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/rangefront/armory/internal/account/domain"
	auditdomain "github.com/rangefront/armory/internal/audit/domain"
	catalogdomain "github.com/rangefront/armory/internal/catalog/domain"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	outboxdomain "github.com/rangefront/armory/internal/outbox/domain"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	"gorm.io/gorm"
)

// EnsureDefaults makes a fresh database operational: the mint sequences must
// exist before the first checkout, and the compliance engine refuses to run
// without an active config.
func EnsureDefaults(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMintSequences(ctx, tx); err != nil {
			return err
		}
		return ensureComplianceConfig(ctx, tx, node, cfg)
	})
}

func ensureMintSequences(ctx context.Context, tx *gorm.DB) error {
	for _, scope := range []string{snapshotdomain.SequenceScopeLive, snapshotdomain.SequenceScopeTest} {
		var count int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1) FROM mint_sequences WHERE scope = ?`, scope,
		).Scan(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO mint_sequences (scope, last_value) VALUES (?, 0)`, scope,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureComplianceConfig(ctx context.Context, tx *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	var count int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM compliance_configs WHERE active = ?`, true,
	).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return tx.WithContext(ctx).Exec(
		`INSERT INTO compliance_configs (id, window_days, firearm_limit, multi_firearm_hold_enabled, ffl_hold_enabled, active, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		node.Generate(),
		cfg.ComplianceWindowDays,
		cfg.ComplianceFirearmCap,
		true,
		true,
		true,
		"seed",
		time.Now().UTC(),
	).Error
}

// Models lists every persisted type for the sqlite/dev AutoMigrate path. Keep
// in sync with the embedded postgres migrations.
func Models() []any {
	return []any{
		&accountdomain.Account{},
		&catalogdomain.Product{},
		&compliancedomain.ComplianceConfig{},
		&ffldomain.FFLRecord{},
		&ffldomain.FFLDealer{},
		&orderdomain.Order{},
		&orderdomain.OrderLine{},
		&orderdomain.OrderNote{},
		&snapshotdomain.OrderSnapshot{},
		&snapshotdomain.MintSequence{},
		&outboxdomain.Task{},
		&auditdomain.AuditLog{},
	}
}
