package migration

import (
	"strings"

	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
		log = log.Named("migration").With(zap.String("db_type", dbType))

		if dbType != db.TypePostgres {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
			log.Info("schema ready")
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("schema ready")
		return nil
	}),
)
