package event

import (
	"github.com/velvetlounge/gatekeeper/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(service.NewService),
)
