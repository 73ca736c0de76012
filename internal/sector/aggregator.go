// Package sector aggregates constituent stocks into sector-level
// breadth metrics and drives the sector alerting state machine.
package sector

import (
	"time"

	"github.com/dipwatch/dipwatch/internal/indicators"
)

// Member is one constituent's contribution to the sector snapshot.
type Member struct {
	Symbol        string
	CurrentPrice  float64
	RSI           *float64
	SMA200        *float64
	Bollinger     *indicators.Bands
	CurrentVolume float64
	VolumeAvg     *float64
	DipPct        float64
}

// Snapshot is the sector state at a point in time. All breadth ratios
// are in [0, 1].
type Snapshot struct {
	SectorID          string    `json:"sector_id"`
	SectorName        string    `json:"sector_name"`
	Ts                time.Time `json:"ts"`
	DipPct            float64   `json:"dip_pct"`
	RSI40Breadth      float64   `json:"rsi40_breadth"`
	SMA200UpBreadth   float64   `json:"sma200_up_breadth"`
	LowerBandBreadth  float64   `json:"lowerband_breadth"`
	AvgVolumeRatio    float64   `json:"avg_volume_ratio"`
	ConstituentsCount int       `json:"constituents_count"`
}

// RSI40Breadth is the fraction of members with RSI below 40 among
// members that have an RSI at all.
func RSI40Breadth(members []Member) float64 {
	valid, below := 0, 0
	for _, m := range members {
		if m.RSI == nil {
			continue
		}
		valid++
		if *m.RSI < 40 {
			below++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(below) / float64(valid)
}

// SMA200UpBreadth is the fraction of members trading at or above their
// SMA200 among members with a valid price/SMA pair.
func SMA200UpBreadth(members []Member) float64 {
	valid, above := 0, 0
	for _, m := range members {
		if m.SMA200 == nil || m.CurrentPrice <= 0 {
			continue
		}
		valid++
		if m.CurrentPrice >= *m.SMA200 {
			above++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(above) / float64(valid)
}

// LowerBandBreadth is the fraction of members within +2% of their
// lower Bollinger band.
func LowerBandBreadth(members []Member) float64 {
	valid, near := 0, 0
	for _, m := range members {
		if m.Bollinger == nil || m.CurrentPrice <= 0 {
			continue
		}
		valid++
		if m.CurrentPrice <= m.Bollinger.Lower*1.02 {
			near++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(near) / float64(valid)
}

// AvgVolumeRatio is the mean of current/average volume over members
// with a positive volume average. Defaults to 1.0 when undefined.
func AvgVolumeRatio(members []Member) float64 {
	sum, valid := 0.0, 0
	for _, m := range members {
		if m.VolumeAvg == nil || *m.VolumeAvg <= 0 {
			continue
		}
		valid++
		sum += m.CurrentVolume / *m.VolumeAvg
	}
	if valid == 0 {
		return 1.0
	}
	return sum / float64(valid)
}

// ComputeSnapshot aggregates member data into a sector snapshot.
// Weights are renormalized to sum to 1; missing or mismatched weights
// fall back to equal weighting. Empty input yields a zeroed snapshot.
func ComputeSnapshot(sectorID, sectorName string, members []Member, weights []float64, now time.Time) Snapshot {
	n := len(members)
	if n == 0 {
		return Snapshot{
			SectorID:       sectorID,
			SectorName:     sectorName,
			Ts:             now,
			AvgVolumeRatio: 1.0,
		}
	}

	if len(weights) != n {
		weights = nil
	}
	if weights == nil {
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = 1.0 / float64(n)
		}
	} else {
		sum := 0.0
		for _, w := range weights {
			sum += w
		}
		if sum > 0 {
			normalized := make([]float64, n)
			for i, w := range weights {
				normalized[i] = w / sum
			}
			weights = normalized
		}
	}

	weightedDip := 0.0
	for i, m := range members {
		weightedDip += m.DipPct * weights[i]
	}

	return Snapshot{
		SectorID:          sectorID,
		SectorName:        sectorName,
		Ts:                now,
		DipPct:            weightedDip,
		RSI40Breadth:      RSI40Breadth(members),
		SMA200UpBreadth:   SMA200UpBreadth(members),
		LowerBandBreadth:  LowerBandBreadth(members),
		AvgVolumeRatio:    AvgVolumeRatio(members),
		ConstituentsCount: n,
	}
}
