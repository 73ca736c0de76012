package market

import (
	"context"
	"time"
)

// Bar is a single OHLCV bar. Timestamps are UTC and strictly ascending
// within a fetched series.
type Bar struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BarSource fetches OHLCV history for a symbol. Implementations must
// return bars sorted ascending by timestamp with no duplicates. An empty
// slice means "no data this cycle" and callers skip the symbol.
type BarSource interface {
	Fetch(ctx context.Context, symbol string, interval string, lookback int) ([]Bar, error)
}

// Closes extracts the close series from a bar slice.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series from a bar slice.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Volumes extracts the volume series from a bar slice.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Timestamps extracts bar timestamps.
func Timestamps(bars []Bar) []time.Time {
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out
}

// ADTV is the mean traded value (close*volume) over the last n bars, or
// all bars when fewer are available. Returns 0 for an empty series.
func ADTV(bars []Bar, n int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if n <= 0 || n > len(bars) {
		n = len(bars)
	}
	sum := 0.0
	for _, b := range bars[len(bars)-n:] {
		sum += b.Close * b.Volume
	}
	return sum / float64(n)
}
