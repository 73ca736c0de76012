package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2, cfg.Scheduler.AlertCycleMinutes)
	assert.Equal(t, 15, cfg.Scheduler.SectorCycleMinutes)
	assert.Equal(t, int64(5), cfg.Noise.DailyUserCap)
	assert.Equal(t, int64(2), cfg.Noise.DailySymbolCap)
	assert.Equal(t, 1800, cfg.Sector.CooldownSeconds)
	assert.Equal(t, 50.0, cfg.Filter.MinPrice)
	assert.Equal(t, 1_000_000.0, cfg.Filter.MinADTV)
	assert.Equal(t, 12, cfg.Data.CandidateLimit)
	assert.Equal(t, 365, cfg.Data.BarHistoryDays)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
scheduler:
  alert_cycle_minutes: 5
  alert_cycle_always: true
noise:
  daily_user_cap: 9
filter:
  min_price: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Scheduler.AlertCycleMinutes)
	assert.True(t, cfg.Scheduler.AlertCycleAlways)
	assert.Equal(t, int64(9), cfg.Noise.DailyUserCap)
	assert.Equal(t, 25.0, cfg.Filter.MinPrice)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 15, cfg.Scheduler.SectorCycleMinutes)
	assert.Equal(t, int64(2), cfg.Noise.DailySymbolCap)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Scheduler.AlertCycleMinutes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis-prod:6379")
	t.Setenv("DATABASE_URL", "postgres://example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, "postgres://example", cfg.Postgres.DSN)
}

func TestValidateRejectsBadCadence(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.AlertCycleMinutes = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsShortHistory(t *testing.T) {
	cfg := Default()
	cfg.Data.BarHistoryDays = 30
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := Default()
	cfg.Exchange.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}
