package migration

import (
	"github.com/rangefront/armory/internal/config"
	"github.com/rangefront/armory/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.MigrationsEnabled && cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Dev and sqlite deployments derive the schema from the models.
			if err := conn.AutoMigrate(seed.Models()...); err != nil {
				return err
			}
		}

		if cfg.SeedDefaults {
			return seed.EnsureDefaults(conn, cfg)
		}
		return nil
	}),
)
