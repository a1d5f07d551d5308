package observability

import (
	"strings"

	"github.com/smallbiznis/posbridge/internal/config"
)

// Config is the part of the process configuration the logging, tracing and
// metrics providers read.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Telemetry   config.TelemetryConfig
	Endpoint    string
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "posbridge"
	}
	return Config{
		ServiceName: name,
		Environment: strings.TrimSpace(cfg.Environment),
		Version:     strings.TrimSpace(cfg.AppVersion),
		Telemetry:   cfg.Telemetry,
		Endpoint:    strings.TrimSpace(cfg.OTLPEndpoint),
	}
}

// Debug is on for debug log level and for local environments.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
