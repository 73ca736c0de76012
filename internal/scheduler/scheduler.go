// Package scheduler drives the recurring evaluation cycles on a cron
// cadence with market-hours gating and overlap protection.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/clock"
)

// Jobs is what the scheduler runs; implemented by the pipeline.
type Jobs interface {
	AlertCycle(ctx context.Context) error
	SectorCycle(ctx context.Context) error
}

// MarketHours gates jobs to exchange trading hours.
type MarketHours struct {
	OpenMinute  int
	CloseMinute int
}

// Open reports whether t (exchange-local) falls inside trading hours:
// Monday to Friday between the open and close minutes inclusive.
func (h MarketHours) Open(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= h.OpenMinute && minute <= h.CloseMinute
}

// Config tunes the scheduler cadence.
type Config struct {
	AlertCycleMinutes  int
	SectorCycleMinutes int
	// AlertCycleAlways disables market-hours gating for the alert
	// cycle, for off-hours testing.
	AlertCycleAlways bool
}

// Scheduler hosts the cron runner. A job instance never overlaps
// itself; a tick that lands while the previous run is still active is
// skipped.
type Scheduler struct {
	cron  *cron.Cron
	jobs  Jobs
	clk   clock.Clock
	hours MarketHours
	cfg   Config
}

// cronLogger adapts the cron library's logging onto zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	log.Debug().Fields(kv).Msg(msg)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	log.Error().Err(err).Fields(kv).Msg(msg)
}

// New builds a scheduler in the exchange timezone.
func New(jobs Jobs, clk clock.Clock, loc *time.Location, hours MarketHours, cfg Config) *Scheduler {
	runner := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	return &Scheduler{cron: runner, jobs: jobs, clk: clk, hours: hours, cfg: cfg}
}

func (s *Scheduler) runAlertCycle(ctx context.Context) {
	if !s.cfg.AlertCycleAlways && !s.hours.Open(s.clk.LocalNow()) {
		log.Debug().Msg("Market closed, skipping alert cycle")
		return
	}
	if err := s.jobs.AlertCycle(ctx); err != nil {
		log.Error().Err(err).Msg("Alert cycle failed")
	}
}

func (s *Scheduler) runSectorCycle(ctx context.Context) {
	if !s.hours.Open(s.clk.LocalNow()) {
		log.Debug().Msg("Market closed, skipping sector cycle")
		return
	}
	if err := s.jobs.SectorCycle(ctx); err != nil {
		log.Error().Err(err).Msg("Sector cycle failed")
	}
}

// Start registers the jobs, kicks off an asynchronous warm-up run of
// both cycles and starts the cron loop. Returns after scheduling; the
// cron runner owns its goroutines until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	alertSpec := fmt.Sprintf("*/%d * * * *", s.cfg.AlertCycleMinutes)
	sectorSpec := fmt.Sprintf("*/%d * * * *", s.cfg.SectorCycleMinutes)

	if _, err := s.cron.AddFunc(alertSpec, func() { s.runAlertCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule alert cycle: %w", err)
	}
	if _, err := s.cron.AddFunc(sectorSpec, func() { s.runSectorCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule sector cycle: %w", err)
	}

	// Warm-up populates state before the first tick without blocking
	// startup.
	go func() {
		log.Info().Msg("Startup warm-up running")
		s.runAlertCycle(ctx)
		s.runSectorCycle(ctx)
	}()

	s.cron.Start()
	log.Info().Str("alert_spec", alertSpec).Str("sector_spec", sectorSpec).Msg("Scheduler started")
	return nil
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}
