package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/rangefront/armory/internal/account"
	"github.com/rangefront/armory/internal/audit"
	"github.com/rangefront/armory/internal/catalog"
	"github.com/rangefront/armory/internal/checkout"
	"github.com/rangefront/armory/internal/clock"
	"github.com/rangefront/armory/internal/compliance"
	"github.com/rangefront/armory/internal/config"
	"github.com/rangefront/armory/internal/ffl"
	"github.com/rangefront/armory/internal/holds"
	"github.com/rangefront/armory/internal/locks"
	"github.com/rangefront/armory/internal/migration"
	"github.com/rangefront/armory/internal/observability"
	"github.com/rangefront/armory/internal/order"
	"github.com/rangefront/armory/internal/outbox"
	"github.com/rangefront/armory/internal/providers/crm"
	"github.com/rangefront/armory/internal/providers/distributor"
	"github.com/rangefront/armory/internal/providers/payment"
	"github.com/rangefront/armory/internal/server"
	"github.com/rangefront/armory/internal/snapshot"
	"github.com/rangefront/armory/pkg/db"
	"github.com/rangefront/armory/pkg/log"
	pkgredis "github.com/rangefront/armory/pkg/redis"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		pkgredis.Module,
		clock.Module,
		locks.Module,
		observability.Module,
		migration.Module,

		// External providers
		payment.Module,
		distributor.Module,
		crm.Module,

		// Domains
		account.Module,
		catalog.Module,
		audit.Module,
		compliance.Module,
		ffl.Module,
		order.Module,
		snapshot.Module,
		outbox.Module,
		checkout.Module,
		holds.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
