package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORTLIGHT_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "SPY", cfg.BenchmarkSymbol)
	assert.Equal(t, 730, cfg.LookbackDays)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, "0 30 2 * * *", cfg.BatchSchedule)
	assert.False(t, cfg.DevMode)
	assert.False(t, cfg.BatchOnStart)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORTLIGHT_DATA_DIR", t.TempDir())
	t.Setenv("PORTLIGHT_PORT", "9000")
	t.Setenv("RISK_FREE_RATE", "0.03")
	t.Setenv("BENCHMARK_SYMBOL", "VT")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("BATCH_ON_START", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.InDelta(t, 0.03, cfg.RiskFreeRate, 1e-12)
	assert.Equal(t, "VT", cfg.BenchmarkSymbol)
	assert.True(t, cfg.DevMode)
	assert.True(t, cfg.BatchOnStart)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{BatchWorkers: 0, LookbackDays: 730}
	assert.Error(t, cfg.Validate())

	cfg = &Config{BatchWorkers: 2, LookbackDays: 0}
	assert.Error(t, cfg.Validate())

	cfg = &Config{BatchWorkers: 2, LookbackDays: 730, RiskFreeRate: 2.5}
	assert.Error(t, cfg.Validate())

	cfg = &Config{BatchWorkers: 2, LookbackDays: 730, RiskFreeRate: 0.02}
	assert.NoError(t, cfg.Validate())
}
