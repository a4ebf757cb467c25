package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/velvetlounge/gatekeeper/internal/clock"
	"github.com/velvetlounge/gatekeeper/internal/config"
	"github.com/velvetlounge/gatekeeper/internal/entitlement"
	"github.com/velvetlounge/gatekeeper/internal/event"
	"github.com/velvetlounge/gatekeeper/internal/invite"
	"github.com/velvetlounge/gatekeeper/internal/member"
	"github.com/velvetlounge/gatekeeper/internal/observability"
	"github.com/velvetlounge/gatekeeper/internal/platform"
	"github.com/velvetlounge/gatekeeper/internal/scheduler"
	"github.com/velvetlounge/gatekeeper/internal/workflow"
	"github.com/velvetlounge/gatekeeper/pkg/db"
	"github.com/velvetlounge/gatekeeper/pkg/telemetry"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler jobs
		platform.Module,
		entitlement.Module,
		member.Module,
		invite.Module,
		event.Module,
		workflow.Module,

		// No server module!
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
