package market

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	streamReconnectDelay    = 1 * time.Second
	streamMaxReconnectDelay = 30 * time.Second
)

// Quote is one intraday tick from the vendor quote stream.
type Quote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	TsMs   int64   `json:"ts"`
}

// QuoteHandler receives every decoded quote. Handlers must be fast;
// the stream reads on a single goroutine.
type QuoteHandler func(Quote)

// QuoteStream maintains a websocket subscription to an intraday quote
// feed with exponential-backoff reconnects. It keeps incremental
// indicator state warm between daily bar refreshes.
type QuoteStream struct {
	url     string
	handler QuoteHandler
}

// NewQuoteStream prepares a stream against the given websocket URL.
func NewQuoteStream(url string, handler QuoteHandler) *QuoteStream {
	return &QuoteStream{url: url, handler: handler}
}

// Start launches the read loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (s *QuoteStream) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *QuoteStream) loop(ctx context.Context) {
	delay := streamReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connectAndConsume(ctx); err != nil {
			log.Warn().Err(err).Dur("retry_in", delay).Msg("Quote stream disconnected")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > streamMaxReconnectDelay {
				delay = streamMaxReconnectDelay
			}
			continue
		}
		delay = streamReconnectDelay
	}
}

func (s *QuoteStream) connectAndConsume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Str("url", s.url).Msg("Quote stream connected")

	var q Quote
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.ReadJSON(&q); err != nil {
			return err
		}
		s.handler(q)
	}
}
