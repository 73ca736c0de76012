package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/market"
	"github.com/dipwatch/dipwatch/internal/scoring"
	"github.com/dipwatch/dipwatch/internal/sector"
	"github.com/dipwatch/dipwatch/internal/store"
)

type fixedBars map[string][]market.Bar

func (f fixedBars) Fetch(_ context.Context, symbol, _ string, _ int) ([]market.Bar, error) {
	return f[symbol], nil
}

type staticLister []alerts.Rule

func (s staticLister) ListEnabled(_ context.Context) ([]alerts.Rule, error) { return s, nil }

type captureDispatcher struct {
	events []alerts.Event
}

func (c *captureDispatcher) Dispatch(_ context.Context, e alerts.Event) bool {
	c.events = append(c.events, e)
	return true
}

type dropSuppressions struct{}

func (dropSuppressions) Append(_ context.Context, _ alerts.Suppression) error { return nil }

// dippedSeries holds flat at 100 and collapses to endPrice on the last
// bar, a clean deep-dip setup for both state machines.
func dippedSeries(n int, endPrice float64) []market.Bar {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		price := 100.0
		if i == n-1 {
			price = endPrice
		}
		bars[i] = market.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

type pipelineHarness struct {
	pipeline *Pipeline
	dispatch *captureDispatcher
	states   *store.AlertStateStore
	sectors  *sector.StateMachine
	emitter  *sector.Emitter
}

func newPipelineHarness(t *testing.T, bars fixedBars, rules []alerts.Rule) *pipelineHarness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC))
	kv := store.NewMemoryKV()
	states := store.NewAlertStateStore(kv, clk)
	dispatch := &captureDispatcher{}
	noise := alerts.NewNoiseControl(alerts.NoiseConfig{DailyUserCap: 10, DailySymbolCap: 10}, kv, clk)
	engine := alerts.NewEngine(states, dropSuppressions{}, dispatch, noise, nil, clk)

	universe := &Universe{Sectors: []SectorDef{{
		ID:   "it",
		Name: "Information Technology",
		Members: []MemberDef{
			{Symbol: "AAA", Weight: 0.5},
			{Symbol: "BBB", Weight: 0.5},
		},
	}}}

	sectors := sector.NewStateMachine(sector.DefaultThresholds(), clk)
	emitter := sector.NewEmitter(clk)
	scorer := scoring.NewEngine(scoring.DefaultFilters())

	pipeline := NewPipeline(universe, staticLister(rules), bars, engine, scorer,
		sectors, emitter, dispatch, clk, Options{BarHistoryDays: 300, MaxConcurrency: 2})

	return &pipelineHarness{
		pipeline: pipeline,
		dispatch: dispatch,
		states:   states,
		sectors:  sectors,
		emitter:  emitter,
	}
}

func dipGTRule(id, symbol string) alerts.Rule {
	return alerts.Rule{
		ID: id, UserID: "u1", Symbol: symbol,
		Condition: alerts.CondDipGT, Threshold: 10,
		Priority: alerts.PriorityMedium, Enabled: true,
	}
}

func TestAlertCycleFiresOnDeepDip(t *testing.T) {
	bars := fixedBars{"AAA": dippedSeries(300, 80)}
	h := newPipelineHarness(t, bars, []alerts.Rule{dipGTRule("r1", "AAA")})

	require.NoError(t, h.pipeline.AlertCycle(context.Background()))

	require.Len(t, h.dispatch.events, 1)
	assert.Equal(t, "AAA", h.dispatch.events[0].Symbol)

	state, err := h.states.GetState(context.Background(), "r1", "AAA")
	require.NoError(t, err)
	assert.Equal(t, alerts.StateTriggered, state.State)
}

func TestAlertCycleSkipsShortHistory(t *testing.T) {
	bars := fixedBars{"AAA": dippedSeries(40, 80)}
	h := newPipelineHarness(t, bars, []alerts.Rule{dipGTRule("r1", "AAA")})

	require.NoError(t, h.pipeline.AlertCycle(context.Background()))
	assert.Empty(t, h.dispatch.events)

	state, err := h.states.GetState(context.Background(), "r1", "AAA")
	require.NoError(t, err)
	assert.Equal(t, alerts.StateIdle, state.State)
}

func TestAlertCycleSkipsMissingSymbol(t *testing.T) {
	h := newPipelineHarness(t, fixedBars{}, []alerts.Rule{dipGTRule("r1", "GHOST")})
	require.NoError(t, h.pipeline.AlertCycle(context.Background()))
	assert.Empty(t, h.dispatch.events)
}

func TestAlertCycleEvaluatesRulesPerSymbolInOrder(t *testing.T) {
	bars := fixedBars{"AAA": dippedSeries(300, 80)}
	rules := []alerts.Rule{dipGTRule("r1", "AAA"), dipGTRule("r2", "AAA")}
	h := newPipelineHarness(t, bars, rules)

	require.NoError(t, h.pipeline.AlertCycle(context.Background()))
	assert.Len(t, h.dispatch.events, 2)
}

func TestAlertCycleFiresOnIntradayQuote(t *testing.T) {
	// Bars alone show no dip; the live tick collapses the price.
	series := dippedSeries(300, 100)
	h := newPipelineHarness(t, fixedBars{"AAA": series}, []alerts.Rule{dipGTRule("r1", "AAA")})

	quotes := NewQuoteCache()
	quotes.Seed("AAA", series)
	after := series[len(series)-1].Timestamp.Add(4 * time.Hour)
	quotes.Handle(tickAt("AAA", 80, after))
	h.pipeline.AttachQuotes(quotes)

	require.NoError(t, h.pipeline.AlertCycle(context.Background()))

	require.Len(t, h.dispatch.events, 1)
	assert.InDelta(t, (101.0-80.0)/101.0*100, h.dispatch.events[0].Value, 1e-9)
}

func TestAlertCycleIgnoresStaleQuote(t *testing.T) {
	series := dippedSeries(300, 100)
	h := newPipelineHarness(t, fixedBars{"AAA": series}, []alerts.Rule{dipGTRule("r1", "AAA")})

	quotes := NewQuoteCache()
	quotes.Seed("AAA", series)
	before := series[len(series)-1].Timestamp.Add(-4 * time.Hour)
	quotes.Handle(tickAt("AAA", 80, before))
	h.pipeline.AttachQuotes(quotes)

	require.NoError(t, h.pipeline.AlertCycle(context.Background()))
	assert.Empty(t, h.dispatch.events)
}

func TestSectorCycleAlertsAndEmitsBundle(t *testing.T) {
	bars := fixedBars{
		"AAA": dippedSeries(300, 80),
		"BBB": dippedSeries(300, 82),
	}
	h := newPipelineHarness(t, bars, nil)

	require.NoError(t, h.pipeline.SectorCycle(context.Background()))

	assert.Equal(t, sector.StateAlert, h.sectors.CurrentState("it"))

	bundle := h.emitter.Latest("it")
	require.NotNil(t, bundle)
	assert.NotEmpty(t, bundle.Candidates)

	// The bundle rides the same notification fan-out.
	require.Len(t, h.dispatch.events, 1)
	assert.Equal(t, "sector:it", h.dispatch.events[0].RuleID)
}

func TestSectorCycleNoEventNoBundle(t *testing.T) {
	bars := fixedBars{
		"AAA": dippedSeries(300, 99),
		"BBB": dippedSeries(300, 100),
	}
	h := newPipelineHarness(t, bars, nil)

	require.NoError(t, h.pipeline.SectorCycle(context.Background()))
	assert.Equal(t, sector.StateNormal, h.sectors.CurrentState("it"))
	assert.Nil(t, h.emitter.Latest("it"))
	assert.Empty(t, h.dispatch.events)
}
