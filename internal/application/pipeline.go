package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/dip"
	"github.com/dipwatch/dipwatch/internal/indicators"
	"github.com/dipwatch/dipwatch/internal/market"
	"github.com/dipwatch/dipwatch/internal/metrics"
	"github.com/dipwatch/dipwatch/internal/scoring"
	"github.com/dipwatch/dipwatch/internal/sector"
)

// minBars is the floor below which a symbol is skipped for the cycle.
const minBars = 50

// RuleLister provides the alert cycle's working set of rules.
type RuleLister interface {
	ListEnabled(ctx context.Context) ([]alerts.Rule, error)
}

// Options carries pipeline tuning knobs.
type Options struct {
	BarHistoryDays int
	CandidateLimit int
	MaxConcurrency int
}

func (o Options) withDefaults() Options {
	if o.BarHistoryDays <= 0 {
		o.BarHistoryDays = dip.DefaultLookback
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = scoring.DefaultCandidateLimit
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 8
	}
	return o
}

// Pipeline runs the scheduled evaluation cycles: the per-rule alert
// cycle and the per-sector snapshot refresh.
type Pipeline struct {
	universe *Universe
	rules    RuleLister
	bars     market.BarSource
	engine   *alerts.Engine
	scorer   *scoring.Engine
	sectors  *sector.StateMachine
	emitter  *sector.Emitter
	notifier alerts.Dispatcher
	clk      clock.Clock
	opts     Options
	quotes   *QuoteCache
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(universe *Universe, rules RuleLister, bars market.BarSource,
	engine *alerts.Engine, scorer *scoring.Engine, sectors *sector.StateMachine,
	emitter *sector.Emitter, notifier alerts.Dispatcher, clk clock.Clock, opts Options) *Pipeline {
	return &Pipeline{
		universe: universe,
		rules:    rules,
		bars:     bars,
		engine:   engine,
		scorer:   scorer,
		sectors:  sectors,
		emitter:  emitter,
		notifier: notifier,
		clk:      clk,
		opts:     opts.withDefaults(),
	}
}

// AttachQuotes lets the alert cycle refine bar-derived context with
// live stream ticks between daily refreshes.
func (p *Pipeline) AttachQuotes(quotes *QuoteCache) { p.quotes = quotes }

// symbolView is everything one cycle computes for a symbol.
type symbolView struct {
	symbol    string
	price     float64
	volume    float64
	set       indicators.Set
	analysis  dip.Analysis
	adtv      float64
	preScore  scoring.PreScore
	lastBarTs time.Time
}

// buildView fetches bars and computes indicators, dip and pre-score
// for one symbol. Returns nil when the symbol should be skipped this
// cycle.
func (p *Pipeline) buildView(ctx context.Context, symbol string) *symbolView {
	bars, err := p.bars.Fetch(ctx, symbol, "1d", p.opts.BarHistoryDays)
	if err != nil {
		metrics.FetchErrors.Inc()
		log.Warn().Err(err).Str("symbol", symbol).Msg("Bar fetch failed, skipping symbol")
		return nil
	}
	if len(bars) < minBars {
		metrics.SymbolsSkipped.Inc()
		log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Insufficient history, skipping symbol")
		return nil
	}

	closes := market.Closes(bars)
	volumes := market.Volumes(bars)
	last := bars[len(bars)-1]

	set := indicators.All(closes, volumes)
	analysis := dip.Analyze(symbol, closes, market.Highs(bars), market.Timestamps(bars), dip.DefaultLookback)
	adtv := market.ADTV(bars, indicators.VolumePeriod)

	view := &symbolView{
		symbol:    symbol,
		price:     last.Close,
		volume:    last.Volume,
		set:       set,
		analysis:  analysis,
		adtv:      adtv,
		lastBarTs: last.Timestamp,
	}
	view.preScore = p.scorer.Score(scoring.Input{
		Symbol:        symbol,
		CurrentPrice:  view.price,
		Indicators:    set,
		DipPct:        analysis.DipPct,
		CurrentVolume: view.volume,
		ADTV:          adtv,
		IsASM:         p.universe.IsASM(symbol),
	})
	return view
}

func (v *symbolView) marketContext() alerts.MarketContext {
	mc := alerts.MarketContext{
		Symbol:   v.symbol,
		Price:    v.price,
		DipPct:   v.analysis.DipPct,
		Volume:   v.volume,
		PreScore: v.preScore.Score,
	}
	mc.RSI = v.set.RSI
	if v.set.MACD != nil {
		hist := v.set.MACD.Histogram
		mc.MACDHistogram = &hist
	}
	mc.AvgVolume = v.set.VolumeAvg
	return mc
}

// refineIntraday overlays the latest stream tick on bar-derived context
// when the tick is fresher than the last daily bar. Volume and
// pre-score stay bar-derived; only price, dip and RSI move intraday.
func (p *Pipeline) refineIntraday(mc *alerts.MarketContext, lastBar time.Time) {
	if p.quotes == nil {
		return
	}
	snap, ok := p.quotes.Snapshot(mc.Symbol)
	if !ok || !snap.Ts.After(lastBar) {
		return
	}

	mc.Price = snap.Quote.Price
	if snap.DipPct != nil {
		mc.DipPct = *snap.DipPct
	}
	if snap.RSI != nil {
		mc.RSI = snap.RSI
	}
	log.Debug().Str("symbol", mc.Symbol).Float64("price", mc.Price).
		Float64("dip_pct", mc.DipPct).Msg("Context refined from quote stream")
}

// AlertCycle loads enabled rules, groups them by symbol and evaluates
// each group against fresh market context. Symbol groups run
// concurrently; rules within a group run sequentially so state
// transitions stay linearizable per rule.
func (p *Pipeline) AlertCycle(ctx context.Context) error {
	started := p.clk.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("alert").Observe(time.Since(started).Seconds())
	}()

	rules, err := p.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled rules: %w", err)
	}
	if len(rules) == 0 {
		return nil
	}

	groups := make(map[string][]alerts.Rule)
	for _, r := range rules {
		groups[r.Symbol] = append(groups[r.Symbol], r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrency)

	for symbol, group := range groups {
		symbol, group := symbol, group
		g.Go(func() error {
			view := p.buildView(gctx, symbol)
			if view == nil {
				return nil
			}
			mc := view.marketContext()
			p.refineIntraday(&mc, view.lastBarTs)
			for _, rule := range group {
				if err := p.engine.Evaluate(gctx, rule, mc); err != nil {
					log.Error().Err(err).Str("rule_id", rule.ID).Str("symbol", symbol).Msg("Rule evaluation failed")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("alert cycle: %w", err)
	}

	log.Info().Int("rules", len(rules)).Int("symbols", len(groups)).
		Dur("took", time.Since(started)).Msg("Alert cycle complete")
	return nil
}

// SectorCycle recomputes every sector snapshot, feeds the sector state
// machine, and on qualifying events ranks candidates and emits a
// suggestion bundle.
func (p *Pipeline) SectorCycle(ctx context.Context) error {
	started := p.clk.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues("sector").Observe(time.Since(started).Seconds())
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxConcurrency)

	for _, def := range p.universe.Sectors {
		def := def
		g.Go(func() error {
			p.refreshSector(gctx, def)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sector cycle: %w", err)
	}

	log.Info().Int("sectors", len(p.universe.Sectors)).
		Dur("took", time.Since(started)).Msg("Sector cycle complete")
	return nil
}

func (p *Pipeline) refreshSector(ctx context.Context, def SectorDef) {
	members := make([]sector.Member, 0, len(def.Members))
	weights := make([]float64, 0, len(def.Members))
	candidates := make([]scoring.Candidate, 0, len(def.Members))

	for _, m := range def.Members {
		view := p.buildView(ctx, m.Symbol)
		if view == nil {
			continue
		}
		members = append(members, sector.Member{
			Symbol:        view.symbol,
			CurrentPrice:  view.price,
			RSI:           view.set.RSI,
			SMA200:        view.set.SMA200,
			Bollinger:     view.set.Bollinger,
			CurrentVolume: view.volume,
			VolumeAvg:     view.set.VolumeAvg,
			DipPct:        view.analysis.DipPct,
		})
		weights = append(weights, m.Weight)

		cand := scoring.Candidate{
			PreScore:     view.preScore,
			CurrentPrice: view.price,
			SMA200:       view.set.SMA200,
			ADTV:         view.adtv,
		}
		if view.set.Bollinger != nil {
			lower := view.set.Bollinger.Lower
			cand.LowerBand = &lower
		}
		candidates = append(candidates, cand)
	}

	snapshot := sector.ComputeSnapshot(def.ID, def.Name, members, weights, p.clk.Now())
	event := p.sectors.Update(def.ID, snapshot)
	if event == nil {
		return
	}
	metrics.SectorTransitions.WithLabelValues(string(event.NewState)).Inc()

	if event.NewState != sector.StateAlert {
		return
	}

	ranked := scoring.Rank(candidates, p.opts.CandidateLimit)
	bundle := p.emitter.Emit(*event, ranked)
	if bundle == nil {
		return
	}
	metrics.BundlesEmitted.Inc()
	p.notifyBundle(ctx, *event, *bundle)
}

// notifyBundle pushes a sector bundle through the same provider
// fan-out as rule alerts.
func (p *Pipeline) notifyBundle(ctx context.Context, event sector.Event, bundle sector.SuggestionBundle) {
	if p.notifier == nil {
		return
	}
	symbols := make([]string, 0, len(bundle.Candidates))
	for _, c := range bundle.Candidates {
		symbols = append(symbols, c.Symbol)
	}

	notice := alerts.Event{
		ID:       bundle.BundleID,
		RuleID:   "sector:" + bundle.SectorID,
		Symbol:   bundle.SectorID,
		FiredAt:  bundle.Ts,
		Priority: alerts.PriorityMedium,
		Value:    event.Metrics.DipPct,
		Message:  fmt.Sprintf("Sector %s in %s: %d candidates", event.SectorID, event.NewState, len(bundle.Candidates)),
		Chips:    bundle.SeverityTags,
		Payload: map[string]interface{}{
			"bundle_id": bundle.BundleID,
			"symbols":   symbols,
		},
	}
	if event.IsWorsen() {
		notice.Priority = alerts.PriorityHigh
	}
	p.notifier.Dispatch(ctx, notice)
}
