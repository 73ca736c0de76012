package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dipwatch/dipwatch/internal/alerts"
)

const rulesSchema = `
CREATE TABLE IF NOT EXISTS alert_rules (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	condition        TEXT NOT NULL,
	threshold        DOUBLE PRECISION NOT NULL,
	debounce_seconds INTEGER NOT NULL DEFAULT 0,
	hysteresis_reset DOUBLE PRECISION NOT NULL DEFAULT 0,
	cooldown_seconds INTEGER NOT NULL DEFAULT 0,
	priority         TEXT NOT NULL,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_rules_user ON alert_rules (user_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_symbol ON alert_rules (symbol);
`

// RuleStore is the durable relational store for alert rules.
type RuleStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRuleStore builds a rule store. timeout bounds every query.
func NewRuleStore(db *sqlx.DB, timeout time.Duration) *RuleStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RuleStore{db: db, timeout: timeout}
}

// Init creates the schema when missing.
func (s *RuleStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, rulesSchema); err != nil {
		return fmt.Errorf("create alert_rules schema: %w", err)
	}
	return nil
}

// Create inserts a validated rule.
func (s *RuleStore) Create(ctx context.Context, rule alerts.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO alert_rules
		(id, user_id, symbol, condition, threshold, debounce_seconds,
		 hysteresis_reset, cooldown_seconds, priority, enabled, created_at, updated_at)
		VALUES (:id, :user_id, :symbol, :condition, :threshold, :debounce_seconds,
		 :hysteresis_reset, :cooldown_seconds, :priority, :enabled, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}

// Get fetches one rule by id.
func (s *RuleStore) Get(ctx context.Context, id string) (alerts.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rule alerts.Rule
	err := s.db.GetContext(ctx, &rule, `SELECT * FROM alert_rules WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return alerts.Rule{}, fmt.Errorf("rule %s: not found", id)
	}
	if err != nil {
		return alerts.Rule{}, fmt.Errorf("get rule %s: %w", id, err)
	}
	return rule, nil
}

// List returns rules filtered by optional user and symbol; empty
// strings match everything.
func (s *RuleStore) List(ctx context.Context, userID, symbol string) ([]alerts.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT * FROM alert_rules WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR symbol = $2) ORDER BY created_at`
	var rules []alerts.Rule
	if err := s.db.SelectContext(ctx, &rules, query, userID, symbol); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ListEnabled returns every enabled rule, the alert cycle's working
// set.
func (s *RuleStore) ListEnabled(ctx context.Context) ([]alerts.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rules []alerts.Rule
	if err := s.db.SelectContext(ctx, &rules, `SELECT * FROM alert_rules WHERE enabled ORDER BY symbol, created_at`); err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	return rules, nil
}

// SetEnabled toggles a rule.
func (s *RuleStore) SetEnabled(ctx context.Context, id string, enabled bool, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, now)
	if err != nil {
		return fmt.Errorf("toggle rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: not found", id)
	}
	return nil
}

// Delete removes a rule. The caller cascades the KV state deletion.
func (s *RuleStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: not found", id)
	}
	return nil
}
