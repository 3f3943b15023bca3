package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/migration"
	"github.com/smallbiznis/cableledger/internal/observability"
	"github.com/smallbiznis/cableledger/internal/seed"
	"github.com/smallbiznis/cableledger/internal/server"
	"github.com/smallbiznis/cableledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Ledger API; brings tenant, subscriber, bill, payment and receipt services.
		server.Module,
		seed.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
