// Package scoring maps a stock's technical setup onto the 0-12
// dip-buying pre-score and ranks qualifying candidates.
package scoring

import (
	"fmt"

	"github.com/dipwatch/dipwatch/internal/indicators"
)

// Filters gate which stocks are eligible for scoring at all.
type Filters struct {
	MinADTV    float64 `yaml:"min_adtv"`
	MinPrice   float64 `yaml:"min_price"`
	ExcludeASM bool    `yaml:"exclude_asm"`
}

// DefaultFilters matches the canonical candidate gate.
func DefaultFilters() Filters {
	return Filters{MinADTV: 1_000_000, MinPrice: 50.0, ExcludeASM: true}
}

// PreScore is the scored result for one stock. Score is always even
// and within [0, 12].
type PreScore struct {
	Symbol  string   `json:"symbol"`
	Score   int      `json:"pre_score"`
	Reasons []string `json:"reasons"`
	Flags   []string `json:"flags"`
}

// Input carries everything the scorer needs for one stock.
type Input struct {
	Symbol        string
	CurrentPrice  float64
	Indicators    indicators.Set
	DipPct        float64
	CurrentVolume float64
	ADTV          float64
	IsASM         bool
}

// Engine scores stocks against the six-check dip checklist.
type Engine struct {
	filters Filters
}

// NewEngine builds a scorer with the given filters.
func NewEngine(filters Filters) *Engine {
	return &Engine{filters: filters}
}

// PassesFilters applies the pre-filters. The reason is set when a
// filter rejects the stock.
func (e *Engine) PassesFilters(price, adtv float64, isASM bool) (bool, string) {
	if price < e.filters.MinPrice {
		return false, fmt.Sprintf("Price %.2f below min %.2f", price, e.filters.MinPrice)
	}
	if adtv < e.filters.MinADTV {
		return false, fmt.Sprintf("ADTV %.0f below min %.0f", adtv, e.filters.MinADTV)
	}
	if e.filters.ExcludeASM && isASM {
		return false, "Stock in ASM/surveillance"
	}
	return true, ""
}

// Score computes the pre-score. Filter failures short-circuit to score
// zero with a "filtered" flag.
func (e *Engine) Score(in Input) PreScore {
	if ok, reason := e.PassesFilters(in.CurrentPrice, in.ADTV, in.IsASM); !ok {
		return PreScore{
			Symbol:  in.Symbol,
			Score:   0,
			Reasons: []string{"Filtered: " + reason},
			Flags:   []string{"filtered"},
		}
	}

	score := 0
	var reasons, flags []string

	// 1. Dip in the 8-15% sweet spot.
	if in.DipPct >= 8 && in.DipPct <= 15 {
		score += 2
		reasons = append(reasons, fmt.Sprintf("Dip %.1f%% (+2)", in.DipPct))
	}

	// 2. RSI 30-40, or oversold below 30 with a volatility flag.
	if rsi := in.Indicators.RSI; rsi != nil {
		switch {
		case *rsi >= 30 && *rsi <= 40:
			score += 2
			reasons = append(reasons, fmt.Sprintf("RSI %.0f (+2)", *rsi))
		case *rsi < 30:
			score += 2
			reasons = append(reasons, fmt.Sprintf("RSI %.0f (+2)", *rsi))
			flags = append(flags, "volatility_risk")
		}
	}

	// 3. MACD bullish: line above signal or positive histogram.
	if macd := in.Indicators.MACD; macd != nil {
		if macd.MACD > macd.Signal || macd.Histogram > 0 {
			score += 2
			reasons = append(reasons, "MACD bullish (+2)")
		}
	}

	// 4. Holding SMA200, or testing it from within 3% below.
	if sma := in.Indicators.SMA200; sma != nil && in.CurrentPrice > 0 {
		if in.CurrentPrice >= *sma {
			score += 2
			reasons = append(reasons, "Holding SMA200 (+2)")
		} else if in.CurrentPrice >= *sma*0.97 {
			score += 2
			reasons = append(reasons, "Testing SMA200 (+2)")
		}
	}

	// 5. Within 2% of the lower Bollinger band.
	if bb := in.Indicators.Bollinger; bb != nil && in.CurrentPrice > 0 {
		if in.CurrentPrice <= bb.Lower*1.02 {
			score += 2
			reasons = append(reasons, "Lower band touch (+2)")
		}
	}

	// 6. Volume spike at 1.5x the 20-day average.
	if avg := in.Indicators.VolumeAvg; avg != nil && *avg > 0 {
		ratio := in.CurrentVolume / *avg
		if ratio >= 1.5 {
			score += 2
			reasons = append(reasons, fmt.Sprintf("Vol %.1fx (+2)", ratio))
		}
	}

	return PreScore{Symbol: in.Symbol, Score: score, Reasons: reasons, Flags: flags}
}

// ScoreBatch scores a batch of stocks.
func (e *Engine) ScoreBatch(inputs []Input) []PreScore {
	out := make([]PreScore, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, e.Score(in))
	}
	return out
}
