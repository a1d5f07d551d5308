package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/auth/token"
	"github.com/smallbiznis/posbridge/internal/billing"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/internal/logsink"
	"github.com/smallbiznis/posbridge/internal/migration"
	"github.com/smallbiznis/posbridge/internal/observability"
	"github.com/smallbiznis/posbridge/internal/pipeline"
	"github.com/smallbiznis/posbridge/internal/profile"
	"github.com/smallbiznis/posbridge/internal/provider"
	"github.com/smallbiznis/posbridge/internal/scheduler"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
)

// The worker runs the sync loop only. Operators reach it through the
// all-in-one binary's admin API.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		logsink.Module,

		billing.Module,
		profile.Module,
		provider.Module,
		token.Module,
		pipeline.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
