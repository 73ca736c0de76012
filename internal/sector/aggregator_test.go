package sector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/indicators"
)

func f(v float64) *float64 { return &v }

func testMembers() []Member {
	return []Member{
		{
			Symbol: "A", CurrentPrice: 100, RSI: f(35), SMA200: f(90),
			Bollinger:     &indicators.Bands{Lower: 99},
			CurrentVolume: 2000, VolumeAvg: f(1000), DipPct: 10,
		},
		{
			Symbol: "B", CurrentPrice: 100, RSI: f(55), SMA200: f(110),
			Bollinger:     &indicators.Bands{Lower: 80},
			CurrentVolume: 1000, VolumeAvg: f(1000), DipPct: 6,
		},
		{
			Symbol: "C", CurrentPrice: 100, DipPct: 2,
		},
	}
}

func TestBreadthSkipsMissingData(t *testing.T) {
	members := testMembers()

	// C has no RSI, so breadth is over two members.
	assert.InDelta(t, 0.5, RSI40Breadth(members), 1e-9)
	assert.InDelta(t, 0.5, SMA200UpBreadth(members), 1e-9)
	assert.InDelta(t, 0.5, LowerBandBreadth(members), 1e-9)
	assert.InDelta(t, 1.5, AvgVolumeRatio(members), 1e-9)
}

func TestBreadthEmptyDefaults(t *testing.T) {
	assert.Equal(t, 0.0, RSI40Breadth(nil))
	assert.Equal(t, 0.0, SMA200UpBreadth(nil))
	assert.Equal(t, 0.0, LowerBandBreadth(nil))
	assert.Equal(t, 1.0, AvgVolumeRatio(nil))
}

func TestComputeSnapshotWeighted(t *testing.T) {
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	snap := ComputeSnapshot("it", "IT", testMembers(), []float64{2, 1, 1}, now)

	assert.Equal(t, "it", snap.SectorID)
	assert.Equal(t, 3, snap.ConstituentsCount)
	// Weights renormalize to 0.5/0.25/0.25.
	assert.InDelta(t, 10*0.5+6*0.25+2*0.25, snap.DipPct, 1e-9)
	assert.Equal(t, now, snap.Ts)
}

func TestComputeSnapshotEqualWeightFallback(t *testing.T) {
	// Mismatched weight count falls back to equal weighting.
	snap := ComputeSnapshot("it", "IT", testMembers(), []float64{1}, time.Now())
	assert.InDelta(t, (10.0+6.0+2.0)/3.0, snap.DipPct, 1e-9)
}

func TestComputeSnapshotEmpty(t *testing.T) {
	snap := ComputeSnapshot("it", "IT", nil, nil, time.Now())
	require.Equal(t, 0, snap.ConstituentsCount)
	assert.Equal(t, 0.0, snap.DipPct)
	assert.Equal(t, 1.0, snap.AvgVolumeRatio)
}
