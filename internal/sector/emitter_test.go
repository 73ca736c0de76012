package sector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/scoring"
)

func alertEvent(dip, rsi40 float64, reason string) Event {
	return Event{
		EventID:       "evt1",
		SectorID:      "it",
		PreviousState: StateNormal,
		NewState:      StateAlert,
		Metrics:       Snapshot{SectorID: "it", DipPct: dip, RSI40Breadth: rsi40},
		TriggerReason: reason,
	}
}

func someCandidates() []scoring.RankedCandidate {
	return []scoring.RankedCandidate{
		{Symbol: "TCS", Rank: 1, PreScore: 10},
		{Symbol: "INFY", Rank: 2, PreScore: 8},
	}
}

func TestEmitOnFreshAlert(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	e := NewEmitter(clk)

	bundle := e.Emit(alertEvent(9, 0.5, "Alert criteria met"), someCandidates())
	require.NotNil(t, bundle)
	assert.Equal(t, "evt1", bundle.EventID)
	assert.Len(t, bundle.Candidates, 2)
	assert.Equal(t, bundle, e.Latest("it"))
}

func TestEmitNothingWithoutCandidates(t *testing.T) {
	clk := clock.NewFake(time.Now())
	e := NewEmitter(clk)
	assert.Nil(t, e.Emit(alertEvent(9, 0.5, "Alert criteria met"), nil))
}

func TestDedupWithinWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	e := NewEmitter(clk)
	require.NotNil(t, e.Emit(alertEvent(9, 0.5, "Alert criteria met"), someCandidates()))

	clk.Advance(10 * time.Minute)
	// Non-worsen, non-fresh-alert event inside the window is deduped.
	repeat := alertEvent(9, 0.5, "still bad")
	repeat.PreviousState = StateAlert
	assert.Nil(t, e.Emit(repeat, someCandidates()))

	clk.Advance(25 * time.Minute)
	assert.NotNil(t, e.Emit(repeat, someCandidates()))
}

func TestWorsenOverridesDedup(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	e := NewEmitter(clk)
	require.NotNil(t, e.Emit(alertEvent(9, 0.5, "Alert criteria met"), someCandidates()))

	clk.Advance(5 * time.Minute)
	worsen := alertEvent(12, 0.6, "Conditions worsened during cooldown")
	worsen.PreviousState = StateAlert
	assert.NotNil(t, e.Emit(worsen, someCandidates()))
}

func TestSeverityTags(t *testing.T) {
	clk := clock.NewFake(time.Now())
	e := NewEmitter(clk)

	bundle := e.Emit(alertEvent(16, 0.65, "Alert criteria met"), someCandidates())
	require.NotNil(t, bundle)
	assert.Contains(t, bundle.SeverityTags, "dip_severity: major")
	assert.Contains(t, bundle.SeverityTags, "breadth: high")

	clk.Advance(time.Hour)
	bundle = e.Emit(alertEvent(11, 0.4, "Alert criteria met"), someCandidates())
	require.NotNil(t, bundle)
	assert.Equal(t, []string{"dip_severity: moderate"}, bundle.SeverityTags)
}

func TestBundleHistoryCapped(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	e := NewEmitter(clk)
	for i := 0; i < 25; i++ {
		clk.Advance(time.Hour)
		require.NotNil(t, e.Emit(alertEvent(9, 0.5, "Alert criteria met"), someCandidates()))
	}
	assert.Len(t, e.History("it"), maxBundleHistory)
}
