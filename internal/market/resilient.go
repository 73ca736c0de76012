package market

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ResilientSource wraps a BarSource with a rate limiter, a circuit
// breaker, and bounded retries. Exhausted retries and an open breaker
// both surface as empty bars so the calling cycle skips the symbol
// instead of failing.
type ResilientSource struct {
	inner      BarSource
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration
	maxRetries int
}

// ResilientConfig tunes the decorator. Zero values fall back to
// defaults suitable for a daily-bar vendor.
type ResilientConfig struct {
	RequestsPerSecond float64
	Burst             int
	FetchTimeout      time.Duration
	MaxRetries        int
}

// NewResilientSource decorates src with vendor protection.
func NewResilientSource(src BarSource, cfg ResilientConfig) *ResilientSource {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bar_source",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Bar source breaker state change")
		},
	})

	return &ResilientSource{
		inner:      src,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:    breaker,
		timeout:    cfg.FetchTimeout,
		maxRetries: cfg.MaxRetries,
	}
}

// Fetch applies rate limiting and retries around the inner source. On
// persistent failure it returns empty bars and a nil error: transient
// vendor trouble must not change rule state.
func (r *ResilientSource) Fetch(ctx context.Context, symbol string, interval string, lookback int) ([]Bar, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := r.breaker.Execute(func() (interface{}, error) {
			fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return r.inner.Fetch(fetchCtx, symbol, interval, lookback)
		})
		if err == nil {
			return result.([]Bar), nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
	}

	log.Debug().Str("symbol", symbol).Err(lastErr).Msg("Bar fetch exhausted retries, skipping symbol")
	return nil, nil
}
