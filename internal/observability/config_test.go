package observability

import (
	"testing"

	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production"})

	assert.Equal(t, "cableledger", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigRequiresEndpointForOtel(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName: "ledger-api",
		Observability: config.ObservabilityConfig{
			OtelEnabled:   true,
			SamplingRatio: 4,
		},
	})
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)

	cfg = LoadConfig(config.Config{
		Observability: config.ObservabilityConfig{
			OtelEnabled:   true,
			OTLPEndpoint:  " collector:4318 ",
			OTLPProtocol:  "HTTP",
			SamplingRatio: 0.5,
			LogLevel:      "DEBUG",
		},
	})
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.True(t, cfg.Debug())
}

func TestDebugForDevelopmentEnvironments(t *testing.T) {
	for _, env := range []string{"dev", "Development", "local", "test"} {
		assert.True(t, Config{LogLevel: "info", Environment: env}.Debug(), env)
	}
}
