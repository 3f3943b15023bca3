package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/audit"
	"github.com/smallbiznis/cableledger/internal/bill"
	"github.com/smallbiznis/cableledger/internal/clock"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/observability"
	"github.com/smallbiznis/cableledger/internal/ratelimit"
	"github.com/smallbiznis/cableledger/internal/scheduler"
	"github.com/smallbiznis/cableledger/internal/subscriber"
	"github.com/smallbiznis/cableledger/internal/tenant"
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

		// Domain services required by the monthly generation pass
		audit.Module,
		tenant.Module,
		subscriber.Module,
		bill.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
