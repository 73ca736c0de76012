package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/clock"
)

func noiseAt(t *testing.T, hour, minute int, cfg NoiseConfig) (*NoiseControl, *fakeKV) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 8, 25, hour, minute, 0, 0, time.UTC))
	kv := newFakeKV()
	return NewNoiseControl(cfg, kv, clk), kv
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	cfg := DefaultNoiseConfig()
	cfg.QuietStart = "13:00"
	cfg.QuietEnd = "14:00"

	nc, _ := noiseAt(t, 13, 30, cfg)
	assert.True(t, nc.InQuietHours())

	nc, _ = noiseAt(t, 14, 0, cfg)
	assert.False(t, nc.InQuietHours(), "end is exclusive")

	nc, _ = noiseAt(t, 12, 59, cfg)
	assert.False(t, nc.InQuietHours())
}

func TestQuietHoursWrapMidnight(t *testing.T) {
	cfg := DefaultNoiseConfig() // 22:00-07:00

	nc, _ := noiseAt(t, 23, 0, cfg)
	assert.True(t, nc.InQuietHours())

	nc, _ = noiseAt(t, 3, 0, cfg)
	assert.True(t, nc.InQuietHours())

	nc, _ = noiseAt(t, 7, 0, cfg)
	assert.False(t, nc.InQuietHours())

	nc, _ = noiseAt(t, 12, 0, cfg)
	assert.False(t, nc.InQuietHours())
}

func TestQuietHoursDisabledWhenUnset(t *testing.T) {
	nc, _ := noiseAt(t, 3, 0, NoiseConfig{DailyUserCap: 5, DailySymbolCap: 2})
	assert.False(t, nc.InQuietHours())
}

func TestBudgetCaps(t *testing.T) {
	ctx := context.Background()
	cfg := NoiseConfig{DailyUserCap: 2, DailySymbolCap: 1}
	nc, _ := noiseAt(t, 11, 0, cfg)

	require.False(t, nc.BudgetExceeded(ctx, "u1", "TCS"))
	nc.ConsumeBudget(ctx, "u1", "TCS")

	// Symbol cap (1) hit before user cap (2).
	assert.True(t, nc.BudgetExceeded(ctx, "u1", "TCS"))
	// A different symbol still has headroom.
	assert.False(t, nc.BudgetExceeded(ctx, "u1", "INFY"))

	nc.ConsumeBudget(ctx, "u1", "INFY")
	// User cap now exhausted for every symbol.
	assert.True(t, nc.BudgetExceeded(ctx, "u1", "WIPRO"))
}

func TestBudgetIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	cfg := NoiseConfig{DailyUserCap: 1, DailySymbolCap: 1}
	nc, _ := noiseAt(t, 11, 0, cfg)

	nc.ConsumeBudget(ctx, "u1", "TCS")
	assert.True(t, nc.BudgetExceeded(ctx, "u1", "TCS"))
	assert.False(t, nc.BudgetExceeded(ctx, "u2", "TCS"))
}

func TestBudgetKeyedByUTCDay(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 8, 25, 23, 30, 0, 0, time.UTC))
	kv := newFakeKV()
	nc := NewNoiseControl(NoiseConfig{DailyUserCap: 1, DailySymbolCap: 1}, kv, clk)

	nc.ConsumeBudget(ctx, "u1", "TCS")
	require.True(t, nc.BudgetExceeded(ctx, "u1", "TCS"))

	// Crossing UTC midnight starts a fresh budget.
	clk.Advance(time.Hour)
	assert.False(t, nc.BudgetExceeded(ctx, "u1", "TCS"))
}
