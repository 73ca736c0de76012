package dip

import "time"

// Tracker maintains rolling 52-week high state for streaming updates.
type Tracker struct {
	Symbol   string
	lookback int
	highs    []float64
	closes   []float64
	dates    []time.Time
	high52w  float64
}

// NewTracker creates an empty tracker. lookback <= 0 uses the default
// window.
func NewTracker(symbol string, lookback int) *Tracker {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Tracker{Symbol: symbol, lookback: lookback}
}

// AddBar appends one bar and refreshes the rolling high.
func (t *Tracker) AddBar(close, high float64, date time.Time) {
	t.closes = append(t.closes, close)
	t.highs = append(t.highs, high)
	t.dates = append(t.dates, date)

	if len(t.highs) > t.lookback {
		t.highs = t.highs[len(t.highs)-t.lookback:]
		t.closes = t.closes[len(t.closes)-t.lookback:]
		t.dates = t.dates[len(t.dates)-t.lookback:]
	}

	t.high52w = RollingHigh(t.highs, t.lookback)
}

// High returns the current rolling high, 0 until the first bar.
func (t *Tracker) High() float64 { return t.high52w }

// Current returns the analysis over retained history.
func (t *Tracker) Current() Analysis {
	return Analyze(t.Symbol, t.closes, t.highs, t.dates, t.lookback)
}

// IsNewHigh reports whether the last close sits at or above the
// rolling high.
func (t *Tracker) IsNewHigh() bool {
	if len(t.closes) == 0 {
		return false
	}
	return t.closes[len(t.closes)-1] >= t.high52w
}
