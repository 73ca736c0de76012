package indicators

import (
	"math"
	"time"
)

const maxHistory = 365

// Incremental maintains per-symbol indicator state so a streaming tick
// updates RSI and MACD in O(1) instead of recomputing the whole series.
type Incremental struct {
	Symbol     string
	closes     []float64
	volumes    []float64
	highs      []float64
	lows       []float64
	lastUpdate time.Time

	// Wilder EMA state for RSI.
	rsiAvgGain *float64
	rsiAvgLoss *float64

	// EMA state for MACD.
	emaFast    *float64
	emaSlow    *float64
	macdSignal *float64
}

// NewIncremental creates empty incremental state for a symbol.
func NewIncremental(symbol string) *Incremental {
	return &Incremental{Symbol: symbol}
}

// AddBar appends a bar and trims history to the rolling window.
func (inc *Incremental) AddBar(close, volume, high, low float64, at time.Time) {
	inc.closes = append(inc.closes, close)
	inc.volumes = append(inc.volumes, volume)
	inc.highs = append(inc.highs, high)
	inc.lows = append(inc.lows, low)
	inc.lastUpdate = at

	if len(inc.closes) > maxHistory {
		inc.closes = inc.closes[len(inc.closes)-maxHistory:]
		inc.volumes = inc.volumes[len(inc.volumes)-maxHistory:]
		inc.highs = inc.highs[len(inc.highs)-maxHistory:]
		inc.lows = inc.lows[len(inc.lows)-maxHistory:]
	}
}

// Current recomputes the full indicator set from retained history.
func (inc *Incremental) Current() Set {
	return All(inc.closes, inc.volumes)
}

// Len reports retained bar count.
func (inc *Incremental) Len() int { return len(inc.closes) }

// UpdateRSI advances the Wilder averages with one new close and returns
// the updated RSI. The first call seeds state from the batch
// calculation; later calls are O(1).
func (inc *Incremental) UpdateRSI(newClose float64, period int) (float64, error) {
	if len(inc.closes) < 2 {
		return 0, ErrInsufficientData
	}

	if inc.rsiAvgGain == nil {
		rsi, err := RSI(inc.closes, period)
		if err != nil {
			return 0, err
		}
		gain, loss := seedAverages(inc.closes, period)
		inc.rsiAvgGain = &gain
		inc.rsiAvgLoss = &loss
		return rsi, nil
	}

	delta := newClose - inc.closes[len(inc.closes)-1]
	gain := math.Max(delta, 0)
	loss := math.Max(-delta, 0)

	alpha := 1.0 / float64(period)
	*inc.rsiAvgGain = alpha*gain + (1-alpha)**inc.rsiAvgGain
	*inc.rsiAvgLoss = alpha*loss + (1-alpha)**inc.rsiAvgLoss

	return rsiFromAverages(*inc.rsiAvgGain, *inc.rsiAvgLoss), nil
}

// PreviewRSI returns the RSI as if newClose completed the next bar,
// without advancing the Wilder averages. Intraday ticks must use this
// rather than UpdateRSI: repeated updates inside one bar would compound
// the smoothing as if every tick were a full period.
func (inc *Incremental) PreviewRSI(newClose float64, period int) (float64, error) {
	if len(inc.closes) < 2 {
		return 0, ErrInsufficientData
	}

	if inc.rsiAvgGain == nil {
		if _, err := RSI(inc.closes, period); err != nil {
			return 0, err
		}
		gain, loss := seedAverages(inc.closes, period)
		inc.rsiAvgGain = &gain
		inc.rsiAvgLoss = &loss
	}

	delta := newClose - inc.closes[len(inc.closes)-1]
	gain := math.Max(delta, 0)
	loss := math.Max(-delta, 0)

	alpha := 1.0 / float64(period)
	avgGain := alpha*gain + (1-alpha)**inc.rsiAvgGain
	avgLoss := alpha*loss + (1-alpha)**inc.rsiAvgLoss

	return rsiFromAverages(avgGain, avgLoss), nil
}

// UpdateMACD advances the fast/slow/signal EMAs with one new close.
func (inc *Incremental) UpdateMACD(newClose float64) (MACDResult, error) {
	if inc.emaFast == nil {
		if len(inc.closes) < MACDSlow+MACDSignal {
			return MACDResult{}, ErrInsufficientData
		}
		fast := emaSeries(inc.closes, MACDFast)
		slow := emaSeries(inc.closes, MACDSlow)
		line := make([]float64, len(inc.closes))
		for i := range inc.closes {
			line[i] = fast[i] - slow[i]
		}
		signal := emaSeries(line, MACDSignal)

		last := len(inc.closes) - 1
		f, s, sig := fast[last], slow[last], signal[last]
		inc.emaFast, inc.emaSlow, inc.macdSignal = &f, &s, &sig
	}

	alphaFast := 2.0 / (float64(MACDFast) + 1)
	alphaSlow := 2.0 / (float64(MACDSlow) + 1)
	alphaSignal := 2.0 / (float64(MACDSignal) + 1)

	*inc.emaFast = alphaFast*newClose + (1-alphaFast)**inc.emaFast
	*inc.emaSlow = alphaSlow*newClose + (1-alphaSlow)**inc.emaSlow
	line := *inc.emaFast - *inc.emaSlow
	*inc.macdSignal = alphaSignal*line + (1-alphaSignal)**inc.macdSignal

	return MACDResult{MACD: line, Signal: *inc.macdSignal, Histogram: line - *inc.macdSignal}, nil
}

// seedAverages reproduces the batch RSI smoothing so the incremental
// state continues the exact same sequence.
func seedAverages(closes []float64, period int) (avgGain, avgLoss float64) {
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}
	avgGain = mean(gains[:period])
	avgLoss = mean(losses[:period])
	alpha := 1.0 / float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = alpha*gains[i] + (1-alpha)*avgGain
		avgLoss = alpha*losses[i] + (1-alpha)*avgLoss
	}
	return avgGain, avgLoss
}
