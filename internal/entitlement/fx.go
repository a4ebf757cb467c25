package entitlement

import (
	"github.com/velvetlounge/gatekeeper/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("entitlement",
	fx.Provide(NewService),
)

func NewService(cfg config.Config, log *zap.Logger) Service {
	if cfg.CRMBaseURL == "" {
		log.Warn("entitlement source not configured, lookups will fail soft")
		return Unconfigured{}
	}
	return NewHTTPClient(cfg.CRMBaseURL, cfg.CRMToken)
}
