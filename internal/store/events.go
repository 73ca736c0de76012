package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dipwatch/dipwatch/internal/alerts"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS alert_events (
	id        TEXT PRIMARY KEY,
	rule_id   TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	fired_at  TIMESTAMPTZ NOT NULL,
	priority  TEXT NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	threshold DOUBLE PRECISION NOT NULL,
	message   TEXT NOT NULL,
	payload   TEXT NOT NULL DEFAULT '{}',
	push_sent BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_alert_events_rule ON alert_events (rule_id, fired_at DESC);
`

type eventRow struct {
	ID        string    `db:"id"`
	RuleID    string    `db:"rule_id"`
	Symbol    string    `db:"symbol"`
	FiredAt   time.Time `db:"fired_at"`
	Priority  string    `db:"priority"`
	Value     float64   `db:"value"`
	Threshold float64   `db:"threshold"`
	Message   string    `db:"message"`
	Payload   string    `db:"payload"`
	PushSent  bool      `db:"push_sent"`
}

// EventStore keeps fired alert events for history queries.
type EventStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventStore builds an event store over the shared DB.
func NewEventStore(db *sqlx.DB, timeout time.Duration) *EventStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventStore{db: db, timeout: timeout}
}

// Init creates the schema when missing.
func (s *EventStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, eventsSchema); err != nil {
		return fmt.Errorf("create alert_events schema: %w", err)
	}
	return nil
}

// RecordEvent persists a fired event. Events are immutable.
func (s *EventStore) RecordEvent(ctx context.Context, event alerts.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := "{}"
	if len(event.Payload) > 0 {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
		payload = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_events
		 (id, rule_id, symbol, fired_at, priority, value, threshold, message, payload, push_sent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.RuleID, event.Symbol, event.FiredAt, string(event.Priority),
		event.Value, event.Threshold, event.Message, payload, event.PushSent)
	if err != nil {
		return fmt.Errorf("record event %s: %w", event.ID, err)
	}
	return nil
}

// Recent returns up to limit events for a rule, newest first.
func (s *EventStore) Recent(ctx context.Context, ruleID string, limit int) ([]alerts.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM alert_events WHERE rule_id = $1 ORDER BY fired_at DESC LIMIT $2`,
		ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events for rule %s: %w", ruleID, err)
	}

	out := make([]alerts.Event, 0, len(rows))
	for _, row := range rows {
		event := alerts.Event{
			ID:        row.ID,
			RuleID:    row.RuleID,
			Symbol:    row.Symbol,
			FiredAt:   row.FiredAt,
			Priority:  alerts.Priority(row.Priority),
			Value:     row.Value,
			Threshold: row.Threshold,
			Message:   row.Message,
			PushSent:  row.PushSent,
		}
		if row.Payload != "" && row.Payload != "{}" {
			if err := json.Unmarshal([]byte(row.Payload), &event.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload %s: %w", row.ID, err)
			}
		}
		out = append(out, event)
	}
	return out, nil
}
