package config

import (
	"github.com/smallbiznis/posbridge/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) db.Config { return cfg.DB() }),
	fx.Provide(NewSettingsHolder),
	fx.Provide(func(h *SettingsHolder) SettingsProvider { return h }),
)
