package platform

import (
	"github.com/velvetlounge/gatekeeper/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("platform",
	fx.Provide(NewClient),
)

// NewClient picks the HTTP gateway when one is configured, otherwise
// the noop client so the rest of the system keeps working locally.
func NewClient(cfg config.Config, log *zap.Logger) Client {
	if cfg.PlatformBaseURL == "" {
		log.Warn("platform gateway not configured, using noop client")
		return NewNoopClient()
	}
	return NewHTTPClient(cfg.PlatformBaseURL, cfg.PlatformToken)
}
