package scheduler

import (
	"time"

	"github.com/smallbiznis/posbridge/internal/config"
)

// Config controls the sync loop.
type Config struct {
	Enabled      bool
	RunInterval  time.Duration
	StageTimeout time.Duration
	Parallelism  int
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RunInterval:  time.Minute,
		StageTimeout: 5 * time.Minute,
		Parallelism:  1,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Sync.Enabled,
		RunInterval:  cfg.Sync.Interval,
		StageTimeout: cfg.Sync.StageTimeout,
		Parallelism:  cfg.Sync.Parallelism,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaults.StageTimeout
	}
	if c.Parallelism <= 0 {
		c.Parallelism = defaults.Parallelism
	}
	return c
}
