package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/indicators"
)

func fullSetupInput() Input {
	rsi := 35.0
	sma200 := 95.0
	volAvg := 1000.0
	return Input{
		Symbol:       "TCS",
		CurrentPrice: 100,
		Indicators: indicators.Set{
			RSI:       &rsi,
			MACD:      &indicators.MACDResult{MACD: 1.2, Signal: 0.8, Histogram: 0.4},
			SMA200:    &sma200,
			Bollinger: &indicators.Bands{Upper: 120, Middle: 110, Lower: 99},
			VolumeAvg: &volAvg,
		},
		DipPct:        10,
		CurrentVolume: 2000,
		ADTV:          5_000_000,
	}
}

func TestScorePerfectSetup(t *testing.T) {
	e := NewEngine(DefaultFilters())
	ps := e.Score(fullSetupInput())

	assert.Equal(t, 12, ps.Score)
	assert.Len(t, ps.Reasons, 6)
	assert.Empty(t, ps.Flags)
}

func TestScoreOversoldAddsVolatilityFlag(t *testing.T) {
	e := NewEngine(DefaultFilters())
	in := fullSetupInput()
	rsi := 25.0
	in.Indicators.RSI = &rsi

	ps := e.Score(in)
	assert.Equal(t, 12, ps.Score)
	assert.Contains(t, ps.Flags, "volatility_risk")
}

func TestScoreDipOutsideSweetSpot(t *testing.T) {
	e := NewEngine(DefaultFilters())

	in := fullSetupInput()
	in.DipPct = 20
	ps := e.Score(in)
	assert.Equal(t, 10, ps.Score)

	in.DipPct = 5
	ps = e.Score(in)
	assert.Equal(t, 10, ps.Score)
}

func TestScoreTestingSMA200(t *testing.T) {
	e := NewEngine(DefaultFilters())
	in := fullSetupInput()
	sma := 102.0 // price 100 is within 3% below
	in.Indicators.SMA200 = &sma

	ps := e.Score(in)
	assert.Contains(t, ps.Reasons, "Testing SMA200 (+2)")
}

func TestScoreFilteredByPrice(t *testing.T) {
	e := NewEngine(DefaultFilters())
	in := fullSetupInput()
	in.CurrentPrice = 40

	ps := e.Score(in)
	assert.Equal(t, 0, ps.Score)
	assert.Contains(t, ps.Flags, "filtered")
	require.Len(t, ps.Reasons, 1)
	assert.Contains(t, ps.Reasons[0], "Filtered")
}

func TestScoreFilteredByADTV(t *testing.T) {
	e := NewEngine(DefaultFilters())
	in := fullSetupInput()
	in.ADTV = 500_000

	ps := e.Score(in)
	assert.Equal(t, 0, ps.Score)
	assert.Contains(t, ps.Flags, "filtered")
}

func TestScoreFilteredByASM(t *testing.T) {
	e := NewEngine(DefaultFilters())
	in := fullSetupInput()
	in.IsASM = true

	ps := e.Score(in)
	assert.Equal(t, 0, ps.Score)

	// Disabling the exclusion lets the stock score.
	filters := DefaultFilters()
	filters.ExcludeASM = false
	ps = NewEngine(filters).Score(in)
	assert.Equal(t, 12, ps.Score)
}

func TestScoreMissingIndicators(t *testing.T) {
	e := NewEngine(DefaultFilters())
	ps := e.Score(Input{
		Symbol:       "NEWLISTING",
		CurrentPrice: 100,
		DipPct:       10,
		ADTV:         5_000_000,
	})
	// Only the dip check can pass without indicators.
	assert.Equal(t, 2, ps.Score)
}
