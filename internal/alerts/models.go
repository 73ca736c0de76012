// Package alerts implements per-rule alert evaluation: the
// IDLE/ARMED/TRIGGERED/COOLDOWN state machine, noise control and
// notification fan-out.
package alerts

import (
	"fmt"
	"time"
)

// Condition is the closed set of rule condition types.
type Condition string

const (
	CondDipGT       Condition = "dip_gt"       // dip_pct >= threshold
	CondRSILT       Condition = "rsi_lt"       // rsi < threshold
	CondMACDBullish Condition = "macd_bullish" // histogram > 0 and > threshold
	CondVolumeSpike Condition = "volume_spike" // volume/avg >= threshold
	CondPreScoreGT  Condition = "pre_score_gt" // pre-score > threshold
)

// Valid reports whether the condition is a known variant.
func (c Condition) Valid() bool {
	switch c {
	case CondDipGT, CondRSILT, CondMACDBullish, CondVolumeSpike, CondPreScoreGT:
		return true
	}
	return false
}

// Priority of a rule and its events.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether the priority is a known variant.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// StateName is the per-rule evaluation state.
type StateName string

const (
	StateIdle      StateName = "idle"
	StateArmed     StateName = "armed"
	StateTriggered StateName = "triggered"
	StateCooldown  StateName = "cooldown"
)

// SuppressionReason records why a would-be trigger was denied.
type SuppressionReason string

const (
	SuppressBudget       SuppressionReason = "budget"
	SuppressQuietHours   SuppressionReason = "quiet_hours"
	SuppressCooldown     SuppressionReason = "cooldown"
	SuppressAwaitingConf SuppressionReason = "awaiting_confirmation"
	SuppressLowPriority  SuppressionReason = "low_priority"
	SuppressBurstRollup  SuppressionReason = "burst_rollup"
	SuppressCorporateAct SuppressionReason = "corporate_action"
	SuppressHalt         SuppressionReason = "halt"
)

// Rule is a user-defined alert rule. CRUD is owned by the external
// rule surface; the engine only reads rules.
type Rule struct {
	ID              string    `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	Symbol          string    `json:"symbol" db:"symbol"`
	Condition       Condition `json:"condition" db:"condition"`
	Threshold       float64   `json:"threshold" db:"threshold"`
	DebounceSeconds int       `json:"debounce_seconds" db:"debounce_seconds"`
	HysteresisReset float64   `json:"hysteresis_reset" db:"hysteresis_reset"`
	CooldownSeconds int       `json:"cooldown_seconds" db:"cooldown_seconds"`
	Priority        Priority  `json:"priority" db:"priority"`
	Enabled         bool      `json:"enabled" db:"enabled"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Validate rejects malformed rules so one bad row cannot poison a
// cycle.
func (r Rule) Validate() error {
	if !r.Condition.Valid() {
		return fmt.Errorf("unknown condition %q", r.Condition)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", r.Priority)
	}
	if r.DebounceSeconds < 0 || r.CooldownSeconds < 0 || r.HysteresisReset < 0 {
		return fmt.Errorf("negative timing field on rule %s", r.ID)
	}
	return nil
}

// State is the evaluation state for one (rule, symbol) pair.
type State struct {
	RuleID           string     `json:"rule_id"`
	Symbol           string     `json:"symbol"`
	State            StateName  `json:"state"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at,omitempty"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
	LastValue        *float64   `json:"last_value,omitempty"`
	FirstSignalAt    *time.Time `json:"first_signal_at,omitempty"`
}

// NewState returns the initial IDLE state for a pair.
func NewState(ruleID, symbol string, now time.Time) State {
	return State{RuleID: ruleID, Symbol: symbol, State: StateIdle, LastTransitionAt: now}
}

// Event is an alert that fired. Immutable after emission.
type Event struct {
	ID            string                 `json:"id"`
	RuleID        string                 `json:"rule_id"`
	Symbol        string                 `json:"symbol"`
	FiredAt       time.Time              `json:"fired_at"`
	Priority      Priority               `json:"priority"`
	Value         float64                `json:"value"`
	Threshold     float64                `json:"threshold"`
	Message       string                 `json:"message"`
	Chips         []string               `json:"chips"`
	Payload       map[string]interface{} `json:"payload"`
	PushSent      bool                   `json:"push_sent"`
	DigestBatchID *string                `json:"digest_batch_id,omitempty"`
}

// CollapseKey groups consecutive deliveries for the same rule so later
// pushes replace earlier unread ones.
func (e Event) CollapseKey() string {
	return fmt.Sprintf("%s_%s", e.RuleID, e.Symbol)
}

// Suppression is an append-only record of a denied trigger.
type Suppression struct {
	ID        string            `json:"id" db:"id"`
	RuleID    string            `json:"rule_id" db:"rule_id"`
	Symbol    string            `json:"symbol" db:"symbol"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`
	Reason    SuppressionReason `json:"reason" db:"reason"`
	Meta      map[string]string `json:"meta"`
}

// MarketContext is the freshly computed per-symbol view a rule is
// evaluated against.
type MarketContext struct {
	Symbol        string
	Price         float64
	DipPct        float64
	RSI           *float64
	MACDHistogram *float64
	Volume        float64
	AvgVolume     *float64
	PreScore      int
}
