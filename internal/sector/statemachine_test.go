package sector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/clock"
)

func snap(dip, rsi40, lowerBand float64) Snapshot {
	return Snapshot{
		SectorID:         "it",
		DipPct:           dip,
		RSI40Breadth:     rsi40,
		LowerBandBreadth: lowerBand,
	}
}

func newTestMachine() (*StateMachine, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	return NewStateMachine(DefaultThresholds(), clk), clk
}

func TestNormalToWatch(t *testing.T) {
	sm, _ := newTestMachine()

	event := sm.Update("it", snap(5.5, 0.40, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateNormal, event.PreviousState)
	assert.Equal(t, StateWatch, event.NewState)
	assert.Equal(t, StateWatch, sm.CurrentState("it"))
}

func TestNormalStraightToAlert(t *testing.T) {
	sm, _ := newTestMachine()

	event := sm.Update("it", snap(9, 0.50, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateAlert, event.NewState)

	record, ok := sm.Record("it")
	require.True(t, ok)
	require.NotNil(t, record.LastAlertMetrics)
	assert.Nil(t, record.CooldownUntil)
}

func TestAlertViaLowerBandBreadth(t *testing.T) {
	sm, _ := newTestMachine()

	// rsi40 below the alert bar, lower-band breadth carries it.
	event := sm.Update("it", snap(9, 0.40, 0.60))
	require.NotNil(t, event)
	assert.Equal(t, StateAlert, event.NewState)
}

func TestWatchHysteresis(t *testing.T) {
	sm, _ := newTestMachine()
	require.NotNil(t, sm.Update("it", snap(5.5, 0.40, 0)))

	// Between entry and exit thresholds: hold WATCH.
	assert.Nil(t, sm.Update("it", snap(4.5, 0.34, 0)))
	assert.Equal(t, StateWatch, sm.CurrentState("it"))

	// Below the exit threshold: back to NORMAL.
	event := sm.Update("it", snap(3.5, 0.34, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateNormal, event.NewState)
}

func TestAlertExitsThroughCooldown(t *testing.T) {
	sm, clk := newTestMachine()
	require.NotNil(t, sm.Update("it", snap(9, 0.50, 0)))

	event := sm.Update("it", snap(6, 0.40, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateCooldown, event.NewState)

	record, _ := sm.Record("it")
	require.NotNil(t, record.CooldownUntil)
	assert.Equal(t, clk.Now().Add(1800*time.Second), *record.CooldownUntil)
	require.NotNil(t, record.LastAlertMetrics)
}

func TestCooldownExpiryReturnsToNormal(t *testing.T) {
	sm, clk := newTestMachine()
	sm.Update("it", snap(9, 0.50, 0))
	sm.Update("it", snap(6, 0.40, 0))

	// Before expiry nothing changes.
	clk.Advance(10 * time.Minute)
	assert.Nil(t, sm.Update("it", snap(6, 0.40, 0)))

	clk.Advance(21 * time.Minute)
	event := sm.Update("it", snap(6, 0.40, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateNormal, event.NewState)

	record, _ := sm.Record("it")
	assert.Nil(t, record.CooldownUntil)
	assert.Nil(t, record.LastAlertMetrics)
}

func TestWorsenReAlertDuringCooldown(t *testing.T) {
	sm, clk := newTestMachine()
	sm.Update("it", snap(9, 0.50, 0))
	sm.Update("it", snap(6, 0.40, 0))

	clk.Advance(5 * time.Minute)

	// Dip deepened by >= 2 points vs the saved alert metrics.
	event := sm.Update("it", snap(8.5, 0.40, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateCooldown, event.PreviousState)
	assert.Equal(t, StateAlert, event.NewState)
	assert.True(t, event.IsWorsen())

	record, _ := sm.Record("it")
	assert.Nil(t, record.CooldownUntil)
	require.NotNil(t, record.LastAlertMetrics)
	// Re-alert refreshes the worsen baseline.
	assert.InDelta(t, 8.5, record.LastAlertMetrics.DipPct, 1e-9)
}

func TestBreadthWorsenReAlert(t *testing.T) {
	sm, _ := newTestMachine()
	sm.Update("it", snap(9, 0.50, 0))
	sm.Update("it", snap(6, 0.44, 0))

	event := sm.Update("it", snap(6.5, 0.55, 0))
	require.NotNil(t, event)
	assert.Equal(t, StateAlert, event.NewState)
	assert.True(t, event.IsWorsen())
}

func TestNoEventWithoutChange(t *testing.T) {
	sm, _ := newTestMachine()
	assert.Nil(t, sm.Update("it", snap(1, 0.1, 0)))
	assert.Equal(t, StateNormal, sm.CurrentState("it"))
}

func TestHistoryCapped(t *testing.T) {
	sm, clk := newTestMachine()
	for i := 0; i < 120; i++ {
		clk.Advance(time.Minute)
		if i%2 == 0 {
			sm.Update("it", snap(5.5, 0.40, 0)) // -> WATCH
		} else {
			sm.Update("it", snap(1, 0.1, 0)) // -> NORMAL
		}
	}
	record, ok := sm.Record("it")
	require.True(t, ok)
	assert.Len(t, record.History, maxEventHistory)
	assert.Len(t, sm.History("it", 10), 10)
}
