package scoring

import (
	"math"
	"sort"
)

// RankedCandidate is one entry in a sector's ranked shortlist.
type RankedCandidate struct {
	Symbol              string   `json:"symbol"`
	Rank                int      `json:"rank"`
	PreScore            int      `json:"pre_score"`
	Reasons             []string `json:"reasons"`
	Flags               []string `json:"flags"`
	DistanceToSMA200Pct float64  `json:"distance_to_sma200_pct"`
	DistanceToLowerBPct float64  `json:"distance_to_lower_band_pct"`
	ADTV                float64  `json:"adtv"`
}

// Candidate is the unranked input: a scored stock plus the levels the
// tie-breakers need.
type Candidate struct {
	PreScore     PreScore
	CurrentPrice float64
	SMA200       *float64
	LowerBand    *float64
	ADTV         float64
}

// DefaultCandidateLimit bounds ranked output per sector.
const DefaultCandidateLimit = 12

// RankingScore builds the composite descending sort key:
// 100 per pre-score point, up to 10 for SMA200 proximity when holding,
// up to 5 for lower-band proximity, and ADTV as an infinitesimal
// liquidity tie-break.
func RankingScore(preScore int, price float64, sma200, lowerBand *float64, adtv float64) float64 {
	total := float64(preScore) * 100.0

	if sma200 != nil && *sma200 > 0 && price > 0 && price >= *sma200 {
		distPct := math.Abs(price-*sma200) / *sma200
		total += math.Max(0, 0.10-distPct) * 100
	}

	if lowerBand != nil && *lowerBand > 0 && price > 0 {
		distPct := math.Abs(price-*lowerBand) / *lowerBand
		total += math.Max(0, 0.10-distPct) * 50
	}

	total += adtv / 1_000_000_000_000

	return total
}

// Rank sorts candidates by composite score descending, drops zero
// pre-scores, and returns the top limit entries with ranks from 1.
func Rank(candidates []Candidate, limit int) []RankedCandidate {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	type scored struct {
		cand      Candidate
		sortScore float64
	}

	entries := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.PreScore.Score == 0 {
			continue
		}
		entries = append(entries, scored{
			cand:      c,
			sortScore: RankingScore(c.PreScore.Score, c.CurrentPrice, c.SMA200, c.LowerBand, c.ADTV),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].sortScore > entries[j].sortScore
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]RankedCandidate, 0, len(entries))
	for i, e := range entries {
		distSMA := 0.0
		if e.cand.SMA200 != nil && *e.cand.SMA200 > 0 && e.cand.CurrentPrice > 0 {
			distSMA = (e.cand.CurrentPrice - *e.cand.SMA200) / *e.cand.SMA200 * 100
		}
		distLower := 0.0
		if e.cand.LowerBand != nil && *e.cand.LowerBand > 0 && e.cand.CurrentPrice > 0 {
			distLower = (e.cand.CurrentPrice - *e.cand.LowerBand) / *e.cand.LowerBand * 100
		}

		out = append(out, RankedCandidate{
			Symbol:              e.cand.PreScore.Symbol,
			Rank:                i + 1,
			PreScore:            e.cand.PreScore.Score,
			Reasons:             e.cand.PreScore.Reasons,
			Flags:               e.cand.PreScore.Flags,
			DistanceToSMA200Pct: distSMA,
			DistanceToLowerBPct: distLower,
			ADTV:                e.cand.ADTV,
		})
	}
	return out
}
