package application

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/dip"
	"github.com/dipwatch/dipwatch/internal/indicators"
	"github.com/dipwatch/dipwatch/internal/market"
)

// QuoteCache consumes the live quote stream and maintains per-symbol
// incremental indicator and rolling-high state between full bar
// refreshes.
type QuoteCache struct {
	mu   sync.RWMutex
	incs map[string]*indicators.Incremental
	dips map[string]*dip.Tracker
	last map[string]market.Quote
	rsi  map[string]float64
}

// IntradaySnapshot is the live view for one symbol between bar cycles.
// Pointer fields are nil when the symbol was never seeded.
type IntradaySnapshot struct {
	Quote   market.Quote
	Ts      time.Time
	RSI     *float64
	DipPct  *float64
	Class   dip.Class
	NewHigh bool
}

// NewQuoteCache builds an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{
		incs: make(map[string]*indicators.Incremental),
		dips: make(map[string]*dip.Tracker),
		last: make(map[string]market.Quote),
		rsi:  make(map[string]float64),
	}
}

// Seed primes a symbol's incremental and rolling-high state from daily
// bars so stream ticks continue the same smoothing sequence.
func (c *QuoteCache) Seed(symbol string, bars []market.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc := indicators.NewIncremental(symbol)
	tracker := dip.NewTracker(symbol, dip.DefaultLookback)
	for _, b := range bars {
		inc.AddBar(b.Close, b.Volume, b.High, b.Low, b.Timestamp)
		tracker.AddBar(b.Close, b.High, b.Timestamp)
	}
	c.incs[symbol] = inc
	c.dips[symbol] = tracker

	if tracker.IsNewHigh() {
		log.Debug().Str("symbol", symbol).Float64("high", tracker.High()).
			Msg("Seeded at rolling high")
	}
}

// Handle is a market.QuoteHandler; it records the latest quote and
// refreshes the symbol's streaming RSI. The RSI is a preview against
// the last daily close so repeated ticks do not compound the smoothing.
func (c *QuoteCache) Handle(q market.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last[q.Symbol] = q

	inc, ok := c.incs[q.Symbol]
	if !ok {
		return
	}
	rsi, err := inc.PreviewRSI(q.Price, indicators.RSIPeriod)
	if err != nil {
		log.Debug().Err(err).Str("symbol", q.Symbol).Msg("Streaming RSI not ready")
		return
	}
	c.rsi[q.Symbol] = rsi
}

// Snapshot returns the intraday view for a symbol: the last tick plus
// the dip and RSI it implies against seeded daily state. Reports false
// when no tick has arrived.
func (c *QuoteCache) Snapshot(symbol string) (IntradaySnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.last[symbol]
	if !ok {
		return IntradaySnapshot{}, false
	}

	snap := IntradaySnapshot{Quote: q, Ts: time.UnixMilli(q.TsMs).UTC()}
	if rsi, ok := c.rsi[symbol]; ok {
		v := rsi
		snap.RSI = &v
	}
	if tracker, ok := c.dips[symbol]; ok && tracker.High() > 0 {
		dipPct, class := dip.Classify(q.Price, tracker.High())
		snap.DipPct = &dipPct
		snap.Class = class
		snap.NewHigh = q.Price >= tracker.High()
	}
	return snap, true
}

// LastQuote returns the most recent tick for a symbol.
func (c *QuoteCache) LastQuote(symbol string) (market.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.last[symbol]
	return q, ok
}

// StreamingRSI returns the tick-updated RSI for a symbol.
func (c *QuoteCache) StreamingRSI(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.rsi[symbol]
	return v, ok
}
