package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dipwatch/dipwatch/internal/alerts"
)

const suppressionSchema = `
CREATE TABLE IF NOT EXISTS suppression_log (
	id        TEXT PRIMARY KEY,
	rule_id   TEXT NOT NULL,
	symbol    TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	reason    TEXT NOT NULL,
	meta      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_suppression_rule ON suppression_log (rule_id, timestamp DESC);
`

type suppressionRow struct {
	ID        string    `db:"id"`
	RuleID    string    `db:"rule_id"`
	Symbol    string    `db:"symbol"`
	Timestamp time.Time `db:"timestamp"`
	Reason    string    `db:"reason"`
	Meta      string    `db:"meta"`
}

// SuppressionStore is the append-only log of denied triggers.
type SuppressionStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSuppressionStore builds a suppression log over the shared DB.
func NewSuppressionStore(db *sqlx.DB, timeout time.Duration) *SuppressionStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SuppressionStore{db: db, timeout: timeout}
}

// Init creates the schema when missing.
func (s *SuppressionStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, suppressionSchema); err != nil {
		return fmt.Errorf("create suppression_log schema: %w", err)
	}
	return nil
}

// Append records one suppression. Entries are never updated.
func (s *SuppressionStore) Append(ctx context.Context, entry alerts.Suppression) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	meta := "{}"
	if len(entry.Meta) > 0 {
		raw, err := json.Marshal(entry.Meta)
		if err != nil {
			return fmt.Errorf("encode suppression meta: %w", err)
		}
		meta = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppression_log (id, rule_id, symbol, timestamp, reason, meta)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.RuleID, entry.Symbol, entry.Timestamp, string(entry.Reason), meta)
	if err != nil {
		return fmt.Errorf("append suppression for rule %s: %w", entry.RuleID, err)
	}
	return nil
}

// Query returns up to limit entries for a rule, newest first.
func (s *SuppressionStore) Query(ctx context.Context, ruleID string, limit int) ([]alerts.Suppression, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var rows []suppressionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM suppression_log WHERE rule_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query suppressions for rule %s: %w", ruleID, err)
	}

	out := make([]alerts.Suppression, 0, len(rows))
	for _, row := range rows {
		entry := alerts.Suppression{
			ID:        row.ID,
			RuleID:    row.RuleID,
			Symbol:    row.Symbol,
			Timestamp: row.Timestamp,
			Reason:    alerts.SuppressionReason(row.Reason),
		}
		if row.Meta != "" && row.Meta != "{}" {
			if err := json.Unmarshal([]byte(row.Meta), &entry.Meta); err != nil {
				return nil, fmt.Errorf("decode suppression meta %s: %w", row.ID, err)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
