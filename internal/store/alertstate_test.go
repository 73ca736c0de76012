package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/clock"
)

func TestAlertStateDefaultsToIdle(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	s := NewAlertStateStore(NewMemoryKV(), clk)

	state, err := s.GetState(context.Background(), "r1", "TCS")
	require.NoError(t, err)
	assert.Equal(t, alerts.StateIdle, state.State)
	assert.Equal(t, "r1", state.RuleID)
	assert.Equal(t, "TCS", state.Symbol)
	assert.Equal(t, clk.Now(), state.LastTransitionAt)
}

func TestAlertStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	s := NewAlertStateStore(NewMemoryKV(), clk)

	fired := clk.Now()
	value := 10.5
	state := alerts.State{
		RuleID:           "r1",
		Symbol:           "TCS",
		State:            alerts.StateTriggered,
		LastTransitionAt: fired,
		LastTriggeredAt:  &fired,
		LastValue:        &value,
	}
	require.NoError(t, s.SaveState(ctx, state))

	got, err := s.GetState(ctx, "r1", "TCS")
	require.NoError(t, err)
	assert.Equal(t, alerts.StateTriggered, got.State)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, got.LastTriggeredAt.Equal(fired))
	require.NotNil(t, got.LastValue)
	assert.Equal(t, 10.5, *got.LastValue)
	assert.Nil(t, got.CooldownUntil)
}
