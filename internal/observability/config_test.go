package observability

import (
	"testing"

	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDebug(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "posbridge", cfg.ServiceName)
	assert.False(t, cfg.Debug())

	cfg = LoadConfig(config.Config{
		AppName:     "bridge",
		Environment: "production",
		Telemetry:   config.TelemetryConfig{LogLevel: "debug"},
	})
	assert.Equal(t, "bridge", cfg.ServiceName)
	assert.True(t, cfg.Debug())

	assert.True(t, LoadConfig(config.Config{Environment: "Local"}).Debug())
}
