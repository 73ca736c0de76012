package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/clock"
)

// AlertStateStore keeps per-rule alert states as JSON in the KV store
// under alert:state:{rule_id}.
type AlertStateStore struct {
	kv  KVStore
	clk clock.Clock
}

// NewAlertStateStore builds a state store over the given KV.
func NewAlertStateStore(kv KVStore, clk clock.Clock) *AlertStateStore {
	return &AlertStateStore{kv: kv, clk: clk}
}

func stateKey(ruleID string) string {
	return fmt.Sprintf("alert:state:%s", ruleID)
}

// GetState loads the state for a pair, returning a fresh IDLE state
// when none is stored yet.
func (s *AlertStateStore) GetState(ctx context.Context, ruleID, symbol string) (alerts.State, error) {
	raw, ok, err := s.kv.Get(ctx, stateKey(ruleID))
	if err != nil {
		return alerts.State{}, fmt.Errorf("get alert state %s: %w", ruleID, err)
	}
	if !ok {
		return alerts.NewState(ruleID, symbol, s.clk.Now()), nil
	}
	var state alerts.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return alerts.State{}, fmt.Errorf("decode alert state %s: %w", ruleID, err)
	}
	return state, nil
}

// SaveState persists the state without expiry.
func (s *AlertStateStore) SaveState(ctx context.Context, state alerts.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode alert state %s: %w", state.RuleID, err)
	}
	if err := s.kv.Set(ctx, stateKey(state.RuleID), string(raw), 0); err != nil {
		return fmt.Errorf("save alert state %s: %w", state.RuleID, err)
	}
	return nil
}

// DeleteState clears state after rule deletion by overwriting with a
// short-lived tombstone; the next GetState after expiry starts IDLE.
func (s *AlertStateStore) DeleteState(ctx context.Context, ruleID, symbol string) error {
	fresh := alerts.NewState(ruleID, symbol, s.clk.Now())
	raw, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("encode alert state %s: %w", ruleID, err)
	}
	return s.kv.Set(ctx, stateKey(ruleID), string(raw), time.Second)
}
