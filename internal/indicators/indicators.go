// Package indicators implements the pure technical indicator kernel:
// SMA, RSI, MACD, Bollinger bands and volume averages over ordered
// float series. All functions are deterministic; identical inputs yield
// bit-identical outputs.
package indicators

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than the
// indicator's minimum length.
var ErrInsufficientData = errors.New("insufficient data")

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bands holds Bollinger band levels.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// SMA is the arithmetic mean of the last period samples.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 || len(values) < period {
		return 0, ErrInsufficientData
	}
	return mean(values[len(values)-period:]), nil
}

// RSI computes the Relative Strength Index with Wilder smoothing
// (alpha = 1/period) over first differences. Needs period+1 samples.
// Returns 100 when the average loss is zero.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) < period+1 {
		return 0, ErrInsufficientData
	}

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

	// Seed with the simple mean of the first period changes, then
	// apply the recursive smoothing to the remainder.
	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])
	alpha := 1.0 / float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = alpha*gains[i] + (1-alpha)*avgGain
		avgLoss = alpha*losses[i] + (1-alpha)*avgLoss
	}

	return rsiFromAverages(avgGain, avgLoss), nil
}

// MACD computes the MACD line, its signal EMA and the histogram.
// Needs at least slow+signal samples.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if len(closes) < slow+signal {
		return MACDResult{}, ErrInsufficientData
	}

	emaFast := emaSeries(closes, fast)
	emaSlow := emaSeries(closes, slow)

	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := emaSeries(line, signal)

	last := len(closes) - 1
	return MACDResult{
		MACD:      line[last],
		Signal:    signalLine[last],
		Histogram: line[last] - signalLine[last],
	}, nil
}

// Bollinger computes bands as SMA(period) ± stdDev population sigmas.
func Bollinger(closes []float64, period int, stdDev float64) (Bands, error) {
	if period <= 0 || len(closes) < period {
		return Bands{}, ErrInsufficientData
	}

	window := closes[len(closes)-period:]
	middle := mean(window)

	variance := 0.0
	for _, v := range window {
		d := v - middle
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(period))

	return Bands{
		Upper:  middle + stdDev*sigma,
		Middle: middle,
		Lower:  middle - stdDev*sigma,
	}, nil
}

// VolumeAvg is the arithmetic mean of the last period volumes.
func VolumeAvg(volumes []float64, period int) (float64, error) {
	return SMA(volumes, period)
}

// emaSeries returns the full EMA series with alpha = 2/(period+1),
// seeded from the first sample.
func emaSeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
