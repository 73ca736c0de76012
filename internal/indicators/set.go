package indicators

// Default parameterisation used across the evaluation pipeline.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	VolumePeriod    = 20
)

// Set bundles every indicator the pipeline consumes. Nil fields mean
// the series was too short for that indicator.
type Set struct {
	RSI       *float64    `json:"rsi,omitempty"`
	MACD      *MACDResult `json:"macd,omitempty"`
	SMA50     *float64    `json:"sma50,omitempty"`
	SMA200    *float64    `json:"sma200,omitempty"`
	Bollinger *Bands      `json:"bollinger,omitempty"`
	VolumeAvg *float64    `json:"volume_avg,omitempty"`
}

// All computes every indicator in one pass over the series. Indicators
// whose minimum length is not met are left nil rather than failing the
// whole set.
func All(closes, volumes []float64) Set {
	var set Set

	if v, err := RSI(closes, RSIPeriod); err == nil {
		set.RSI = &v
	}
	if v, err := MACD(closes, MACDFast, MACDSlow, MACDSignal); err == nil {
		set.MACD = &v
	}
	if v, err := SMA(closes, 50); err == nil {
		set.SMA50 = &v
	}
	if v, err := SMA(closes, 200); err == nil {
		set.SMA200 = &v
	}
	if v, err := Bollinger(closes, BollingerPeriod, BollingerStdDev); err == nil {
		set.Bollinger = &v
	}
	if v, err := VolumeAvg(volumes, VolumePeriod); err == nil {
		set.VolumeAvg = &v
	}

	return set
}
