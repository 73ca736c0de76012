package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/application"
	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/config"
	"github.com/dipwatch/dipwatch/internal/market"
	"github.com/dipwatch/dipwatch/internal/scoring"
	"github.com/dipwatch/dipwatch/internal/sector"
	"github.com/dipwatch/dipwatch/internal/store"
)

// staticRules serves a fixed rule set when no database is configured.
type staticRules []alerts.Rule

func (s staticRules) ListEnabled(_ context.Context) ([]alerts.Rule, error) {
	enabled := make([]alerts.Rule, 0, len(s))
	for _, r := range s {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	return enabled, nil
}

// nopSuppressions drops suppression entries when no database is
// configured; the zerolog record remains.
type nopSuppressions struct{}

func (nopSuppressions) Append(_ context.Context, _ alerts.Suppression) error { return nil }

// app bundles the wired engine for the serve and scan commands.
type app struct {
	cfg      *config.Config
	clk      clock.Clock
	kv       store.KVStore
	states   *store.AlertStateStore
	rules    *store.RuleStore
	pipeline *application.Pipeline
	sectors  *sector.StateMachine
	emitter  *sector.Emitter
	quotes   *application.QuoteCache
	universe *application.Universe
	bars     market.BarSource
}

// buildApp loads configuration and wires every collaborator. extraRules
// is merged into the working set for database-less runs.
func buildApp(ctx context.Context, cfgPath, universePath, logLevel string, extraRules []alerts.Rule) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		setLogLevel(logLevel)
	} else {
		setLogLevel(cfg.LogLevel)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clk := clock.New(loc)

	universe, err := application.LoadUniverse(universePath)
	if err != nil {
		return nil, err
	}

	kv := store.NewKV(ctx, cfg.Redis.Addr)
	states := store.NewAlertStateStore(kv, clk)
	noise := alerts.NewNoiseControl(cfg.Noise, kv, clk)
	notifier := alerts.NewNotifier(alerts.ConsoleProvider{})

	var (
		ruleStore    *store.RuleStore
		ruleLister   application.RuleLister
		suppressions alerts.SuppressionLogger
		events       alerts.EventSink
	)
	if cfg.Postgres.DSN != "" {
		db, err := store.OpenDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		ruleStore = store.NewRuleStore(db, 5*time.Second)
		suppressionStore := store.NewSuppressionStore(db, 5*time.Second)
		eventStore := store.NewEventStore(db, 5*time.Second)
		for _, init := range []func(context.Context) error{ruleStore.Init, suppressionStore.Init, eventStore.Init} {
			if err := init(ctx); err != nil {
				return nil, err
			}
		}
		ruleLister = ruleStore
		suppressions = suppressionStore
		events = eventStore
	} else {
		log.Warn().Msg("No database configured, rules are in-memory only")
		ruleLister = staticRules(extraRules)
		suppressions = nopSuppressions{}
	}

	engine := alerts.NewEngine(states, suppressions, notifier, noise, events, clk)
	scorer := scoring.NewEngine(scoring.Filters{
		MinPrice:   cfg.Filter.MinPrice,
		MinADTV:    cfg.Filter.MinADTV,
		ExcludeASM: cfg.Filter.ExcludeASM,
	})
	sectors := sector.NewStateMachine(cfg.Sector, clk)
	emitter := sector.NewEmitter(clk)

	bars := market.NewResilientSource(market.NewSyntheticSource(clk.Now()), market.ResilientConfig{
		RequestsPerSecond: cfg.Data.RequestsPerSecond,
		FetchTimeout:      cfg.FetchTimeout(),
		MaxRetries:        cfg.Data.MaxRetries,
	})

	pipeline := application.NewPipeline(universe, ruleLister, bars, engine, scorer,
		sectors, emitter, notifier, clk, application.Options{
			BarHistoryDays: cfg.Data.BarHistoryDays,
			CandidateLimit: cfg.Data.CandidateLimit,
			MaxConcurrency: cfg.Data.MaxConcurrency,
		})

	quotes := application.NewQuoteCache()
	if cfg.Data.QuoteStreamURL != "" {
		pipeline.AttachQuotes(quotes)
	}

	return &app{
		cfg:      cfg,
		clk:      clk,
		kv:       kv,
		states:   states,
		rules:    ruleStore,
		pipeline: pipeline,
		sectors:  sectors,
		emitter:  emitter,
		quotes:   quotes,
		universe: universe,
		bars:     bars,
	}, nil
}

// startQuoteStream seeds per-symbol incremental state and subscribes
// to the intraday quote feed when one is configured.
func (a *app) startQuoteStream(ctx context.Context) {
	url := a.cfg.Data.QuoteStreamURL
	if url == "" {
		return
	}

	go func() {
		for _, s := range a.universe.Sectors {
			for _, m := range s.Members {
				bars, err := a.bars.Fetch(ctx, m.Symbol, "1d", a.cfg.Data.BarHistoryDays)
				if err != nil || len(bars) == 0 {
					continue
				}
				a.quotes.Seed(m.Symbol, bars)
			}
		}
		log.Info().Msg("Quote cache seeded")
	}()

	stream := market.NewQuoteStream(url, a.quotes.Handle)
	stream.Start(ctx)
	log.Info().Str("url", url).Msg("Quote stream subscription started")
}

func (a *app) stateStore() *store.AlertStateStore { return a.states }

func (a *app) requireRuleStore() (*store.RuleStore, error) {
	if a.rules == nil {
		return nil, fmt.Errorf("rules require a configured database (set postgres.dsn or DATABASE_URL)")
	}
	return a.rules, nil
}
