package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	"github.com/velvetlounge/gatekeeper/internal/config"
	"github.com/velvetlounge/gatekeeper/internal/entitlement"
	"github.com/velvetlounge/gatekeeper/internal/event"
	"github.com/velvetlounge/gatekeeper/internal/invite"
	"github.com/velvetlounge/gatekeeper/internal/member"
	"github.com/velvetlounge/gatekeeper/internal/migration"
	"github.com/velvetlounge/gatekeeper/internal/observability"
	"github.com/velvetlounge/gatekeeper/internal/platform"
	"github.com/velvetlounge/gatekeeper/internal/scheduler"
	"github.com/velvetlounge/gatekeeper/internal/server"
	"github.com/velvetlounge/gatekeeper/internal/workflow"
	"github.com/velvetlounge/gatekeeper/pkg/db"
	"github.com/velvetlounge/gatekeeper/pkg/telemetry"
	"go.uber.org/fx"
)

// The monolith runs the HTTP surface and the scheduler in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		platform.Module,
		entitlement.Module,
		member.Module,
		invite.Module,
		event.Module,
		workflow.Module,

		server.Module,
		scheduler.Module,
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
