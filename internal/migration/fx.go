package migration

import (
	"github.com/velvetlounge/gatekeeper/internal/config"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	invitedomain "github.com/velvetlounge/gatekeeper/internal/invite/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite/mysql dev databases lean on gorm's schema sync.
			return conn.AutoMigrate(
				&memberdomain.Member{},
				&invitedomain.Token{},
				&eventdomain.AccessEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		return RunMigrations(sqlDB)
	}),
)
