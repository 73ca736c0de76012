package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/dip"
	"github.com/dipwatch/dipwatch/internal/market"
)

func tickAt(symbol string, price float64, at time.Time) market.Quote {
	return market.Quote{Symbol: symbol, Price: price, Volume: 100, TsMs: at.UnixMilli()}
}

func TestSnapshotDipAgainstSeededHigh(t *testing.T) {
	c := NewQuoteCache()
	c.Seed("AAA", dippedSeries(300, 100))

	at := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	c.Handle(tickAt("AAA", 80, at))

	snap, ok := c.Snapshot("AAA")
	require.True(t, ok)
	assert.Equal(t, 80.0, snap.Quote.Price)
	assert.True(t, snap.Ts.Equal(at))

	// Rolling high from the seeded bars is 101 (high = close*1.01).
	require.NotNil(t, snap.DipPct)
	assert.InDelta(t, (101.0-80.0)/101.0*100, *snap.DipPct, 1e-9)
	assert.Equal(t, dip.ClassMajor, snap.Class)
	assert.False(t, snap.NewHigh)

	require.NotNil(t, snap.RSI)
	assert.Equal(t, 0.0, *snap.RSI)
}

func TestSnapshotNewHighAboveSeededRange(t *testing.T) {
	c := NewQuoteCache()
	c.Seed("AAA", dippedSeries(300, 100))

	at := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	c.Handle(tickAt("AAA", 150, at))

	snap, ok := c.Snapshot("AAA")
	require.True(t, ok)
	require.NotNil(t, snap.DipPct)
	assert.Equal(t, 0.0, *snap.DipPct)
	assert.Equal(t, dip.ClassNone, snap.Class)
	assert.True(t, snap.NewHigh)
}

func TestRepeatedTicksKeepRSIStable(t *testing.T) {
	c := NewQuoteCache()
	c.Seed("AAA", dippedSeries(300, 80))

	at := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	c.Handle(tickAt("AAA", 90, at))
	first, ok := c.StreamingRSI("AAA")
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		c.Handle(tickAt("AAA", 90, at.Add(time.Duration(i)*time.Second)))
	}
	again, ok := c.StreamingRSI("AAA")
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestSnapshotWithoutSeedCarriesQuoteOnly(t *testing.T) {
	c := NewQuoteCache()
	at := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	c.Handle(tickAt("GHOST", 42, at))

	snap, ok := c.Snapshot("GHOST")
	require.True(t, ok)
	assert.Equal(t, 42.0, snap.Quote.Price)
	assert.Nil(t, snap.DipPct)
	assert.Nil(t, snap.RSI)
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	c := NewQuoteCache()
	_, ok := c.Snapshot("NOPE")
	assert.False(t, ok)

	_, ok = c.LastQuote("NOPE")
	assert.False(t, ok)
}
