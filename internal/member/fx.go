package member

import (
	"github.com/velvetlounge/gatekeeper/internal/member/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("member.repository",
	fx.Provide(repository.Provide),
)
