package market

import (
	"context"
	"hash/fnv"
	"math"
	"time"
)

// SyntheticSource generates deterministic daily bars for demos and
// tests. The same symbol always yields the same series: a slow uptrend
// with a sinusoidal dip so indicators and the dip classifier have
// something to chew on.
type SyntheticSource struct {
	Anchor time.Time
}

// NewSyntheticSource anchors the series so the last bar lands on the
// given day.
func NewSyntheticSource(anchor time.Time) *SyntheticSource {
	return &SyntheticSource{Anchor: anchor.UTC().Truncate(24 * time.Hour)}
}

func (s *SyntheticSource) Fetch(_ context.Context, symbol string, _ string, lookback int) ([]Bar, error) {
	if lookback <= 0 {
		lookback = 365
	}

	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := float64(h.Sum32()%1000) + 100

	bars := make([]Bar, 0, lookback)
	for i := 0; i < lookback; i++ {
		t := s.Anchor.AddDate(0, 0, i-lookback+1)
		// Uptrend with a dip over the final fifth of the window.
		base := seed * (1 + 0.0008*float64(i))
		phase := float64(i) / float64(lookback)
		if phase > 0.8 {
			base *= 1 - 0.12*math.Sin((phase-0.8)*5*math.Pi/2)
		}
		vol := 1_000_000 + 250_000*math.Sin(float64(i)/7)
		bars = append(bars, Bar{
			Timestamp: t,
			Open:      base * 0.995,
			High:      base * 1.01,
			Low:       base * 0.985,
			Close:     base,
			Volume:    vol,
		})
	}
	return bars, nil
}
