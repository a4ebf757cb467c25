package invite

import (
	"github.com/velvetlounge/gatekeeper/internal/invite/repository"
	"github.com/velvetlounge/gatekeeper/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
