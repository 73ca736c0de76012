package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/clock"
)

// KV is the counter store noise control runs on. Implementations must
// make IncrWithTTL atomic (increment and set expiry in one round trip).
type KV interface {
	GetInt(ctx context.Context, key string) (int64, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

const budgetTTL = 86400 * time.Second

// NoiseConfig parameterises quiet hours and daily delivery caps.
type NoiseConfig struct {
	QuietStart     string `yaml:"quiet_start"`
	QuietEnd       string `yaml:"quiet_end"`
	DailyUserCap   int64  `yaml:"daily_user_cap"`
	DailySymbolCap int64  `yaml:"daily_symbol_cap"`
}

// DefaultNoiseConfig returns the canonical caps and an overnight quiet
// window.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		QuietStart:     "22:00",
		QuietEnd:       "07:00",
		DailyUserCap:   5,
		DailySymbolCap: 2,
	}
}

// NoiseControl gates alert delivery by quiet hours and per-day budgets.
// Budget counters live in the KV store keyed by UTC calendar date, so
// all replicas share one budget and the day rolls over naturally.
type NoiseControl struct {
	cfg NoiseConfig
	kv  KV
	clk clock.Clock
}

// NewNoiseControl builds a noise controller.
func NewNoiseControl(cfg NoiseConfig, kv KV, clk clock.Clock) *NoiseControl {
	return &NoiseControl{cfg: cfg, kv: kv, clk: clk}
}

func parseClock(s string) (h, m int, err error) {
	if _, err = fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("parse quiet hour %q: %w", s, err)
	}
	return h, m, nil
}

// InQuietHours reports whether local time falls inside the configured
// quiet window. Windows may wrap midnight (22:00-07:00).
func (n *NoiseControl) InQuietHours() bool {
	if n.cfg.QuietStart == "" || n.cfg.QuietEnd == "" {
		return false
	}
	sh, sm, err := parseClock(n.cfg.QuietStart)
	if err != nil {
		return false
	}
	eh, em, err := parseClock(n.cfg.QuietEnd)
	if err != nil {
		return false
	}

	now := n.clk.LocalNow()
	cur := now.Hour()*60 + now.Minute()
	start := sh*60 + sm
	end := eh*60 + em

	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

// Budget counters are keyed by UTC calendar day; quiet hours alone use
// exchange-local time.
func (n *NoiseControl) userKey(userID string) string {
	return fmt.Sprintf("budget:user:%s:%s", userID, n.clk.Now().Format("20060102"))
}

func (n *NoiseControl) symbolKey(userID, symbol string) string {
	return fmt.Sprintf("budget:symbol:%s:%s:%s", userID, symbol, n.clk.Now().Format("20060102"))
}

// BudgetExceeded checks both daily caps without consuming. KV errors
// fail open: a broken counter store must not silence alerts.
func (n *NoiseControl) BudgetExceeded(ctx context.Context, userID, symbol string) bool {
	userCount, err := n.kv.GetInt(ctx, n.userKey(userID))
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("Budget read failed, failing open")
		return false
	}
	if userCount >= n.cfg.DailyUserCap {
		return true
	}

	symCount, err := n.kv.GetInt(ctx, n.symbolKey(userID, symbol))
	if err != nil {
		log.Warn().Err(err).Str("user", userID).Str("symbol", symbol).Msg("Budget read failed, failing open")
		return false
	}
	return symCount >= n.cfg.DailySymbolCap
}

// ConsumeBudget increments both counters after a successful dispatch.
// Each increment also refreshes the 24h expiry.
func (n *NoiseControl) ConsumeBudget(ctx context.Context, userID, symbol string) {
	if _, err := n.kv.IncrWithTTL(ctx, n.userKey(userID), budgetTTL); err != nil {
		log.Warn().Err(err).Str("user", userID).Msg("Budget consume failed")
	}
	if _, err := n.kv.IncrWithTTL(ctx, n.symbolKey(userID, symbol), budgetTTL); err != nil {
		log.Warn().Err(err).Str("user", userID).Str("symbol", symbol).Msg("Budget consume failed")
	}
}
