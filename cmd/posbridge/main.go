package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/appuser"
	"github.com/smallbiznis/posbridge/internal/auth/session"
	"github.com/smallbiznis/posbridge/internal/auth/token"
	"github.com/smallbiznis/posbridge/internal/authorization"
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
	"github.com/smallbiznis/posbridge/internal/server"
	"github.com/smallbiznis/posbridge/internal/synchealth"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		// Root scope so every module logs through the sink.
		logsink.Module,

		// Functional Domains
		billing.Module,
		profile.Module,
		provider.Module,
		token.Module,
		pipeline.Module,
		scheduler.Module,
		synchealth.Module,

		// Operator access
		appuser.Module,
		authorization.Module,
		session.Module,

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
