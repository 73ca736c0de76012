// Package dip tracks rolling 52-week highs and classifies drawdowns
// into severity bands.
package dip

import (
	"math"
	"time"
)

// DefaultLookback is the rolling-high window in daily bars.
const DefaultLookback = 365

// Class is the categorical dip severity.
type Class string

const (
	ClassNone        Class = "none"        // [0, 3)
	ClassMicro       Class = "micro"       // [3, 5)
	ClassMinor       Class = "minor"       // [5, 8)
	ClassModerate    Class = "moderate"    // [8, 12)
	ClassSignificant Class = "significant" // [12, 15)
	ClassMajor       Class = "major"       // [15, 25)
	ClassExtreme     Class = "extreme"     // [25, ∞)
)

// Analysis is the full dip picture for one symbol.
type Analysis struct {
	Symbol       string     `json:"symbol"`
	CurrentPrice float64    `json:"current_price"`
	High52w      float64    `json:"high_52w"`
	High52wDate  *time.Time `json:"high_52w_date,omitempty"`
	DipPct       float64    `json:"dip_pct"`
	Class        Class      `json:"dip_class"`
	DaysFromHigh *int       `json:"days_from_high,omitempty"`
}

// RollingHigh is the maximum high over the last lookback samples, or
// all samples when fewer are available.
func RollingHigh(highs []float64, lookback int) float64 {
	if len(highs) == 0 {
		return 0
	}
	window := highs
	if lookback > 0 && len(highs) > lookback {
		window = highs[len(highs)-lookback:]
	}
	max := window[0]
	for _, h := range window[1:] {
		if h > max {
			max = h
		}
	}
	return max
}

// Classify returns the dip percentage (clamped to >= 0) and its
// severity band. Bands are right-open: 8.0 is moderate, 7.999 minor.
func Classify(currentPrice, high52w float64) (float64, Class) {
	if high52w == 0 {
		return 0, ClassNone
	}

	pct := (high52w - currentPrice) / high52w * 100
	if pct < 0 {
		return 0, ClassNone
	}

	switch {
	case pct < 3:
		return pct, ClassNone
	case pct < 5:
		return pct, ClassMicro
	case pct < 8:
		return pct, ClassMinor
	case pct < 12:
		return pct, ClassModerate
	case pct < 15:
		return pct, ClassSignificant
	case pct < 25:
		return pct, ClassMajor
	default:
		return pct, ClassExtreme
	}
}

// FindHighDate locates the most recent bar whose high matches the
// rolling high within a 0.01 tolerance. Returns the date and how many
// bars ago it occurred, or false when no bar matches.
func FindHighDate(highs []float64, dates []time.Time, high52w float64) (time.Time, int, bool) {
	if len(highs) == 0 || len(highs) != len(dates) {
		return time.Time{}, 0, false
	}
	for i := len(highs) - 1; i >= 0; i-- {
		if math.Abs(highs[i]-high52w) < 0.01 {
			return dates[i], len(highs) - i - 1, true
		}
	}
	return time.Time{}, 0, false
}

// Analyze performs the complete dip analysis for a symbol.
func Analyze(symbol string, closes, highs []float64, dates []time.Time, lookback int) Analysis {
	if len(closes) == 0 || len(highs) == 0 {
		return Analysis{Symbol: symbol, Class: ClassNone}
	}

	current := closes[len(closes)-1]
	high := RollingHigh(highs, lookback)
	pct, class := Classify(current, high)

	analysis := Analysis{
		Symbol:       symbol,
		CurrentPrice: current,
		High52w:      high,
		DipPct:       pct,
		Class:        class,
	}

	if len(dates) == len(highs) {
		if date, daysAgo, ok := FindHighDate(highs, dates, high); ok {
			analysis.High52wDate = &date
			analysis.DaysFromHigh = &daysAgo
		}
	}

	return analysis
}

// AdjustForSplit divides historical prices by the split ratio so
// pre-split bars compare against post-split levels.
func AdjustForSplit(prices []float64, splitRatio float64) []float64 {
	return divideAll(prices, splitRatio)
}

// AdjustForBonus divides historical prices by the bonus issue ratio.
func AdjustForBonus(prices []float64, bonusRatio float64) []float64 {
	return divideAll(prices, bonusRatio)
}

func divideAll(prices []float64, ratio float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p / ratio
	}
	return out
}
