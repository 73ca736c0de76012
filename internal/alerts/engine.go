package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/metrics"
)

// StateStore persists AlertState between cycles.
type StateStore interface {
	GetState(ctx context.Context, ruleID, symbol string) (State, error)
	SaveState(ctx context.Context, state State) error
}

// SuppressionLogger appends denied-trigger records.
type SuppressionLogger interface {
	Append(ctx context.Context, entry Suppression) error
}

// Dispatcher sends a fired event to its delivery channels and reports
// whether every channel succeeded.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) bool
}

// EventSink receives fired events for durable storage. Optional.
type EventSink interface {
	RecordEvent(ctx context.Context, event Event) error
}

// Engine evaluates alert rules against market context, driving the
// per-rule IDLE/ARMED/TRIGGERED/COOLDOWN state machine. Evaluations
// for the same (rule, symbol) pair must not run concurrently; the
// pipeline serialises per-rule evaluation within a symbol group.
type Engine struct {
	states       StateStore
	suppressions SuppressionLogger
	notifier     Dispatcher
	noise        *NoiseControl
	events       EventSink
	clk          clock.Clock
}

// NewEngine wires an engine. events may be nil.
func NewEngine(states StateStore, suppressions SuppressionLogger, notifier Dispatcher, noise *NoiseControl, events EventSink, clk clock.Clock) *Engine {
	return &Engine{
		states:       states,
		suppressions: suppressions,
		notifier:     notifier,
		noise:        noise,
		events:       events,
		clk:          clk,
	}
}

// checkCondition evaluates the rule condition against market context,
// returning the met flag and the observed value.
func checkCondition(rule Rule, mc MarketContext) (bool, float64, error) {
	switch rule.Condition {
	case CondDipGT:
		return mc.DipPct >= rule.Threshold, mc.DipPct, nil

	case CondRSILT:
		val := 100.0
		if mc.RSI != nil {
			val = *mc.RSI
		}
		return val < rule.Threshold, val, nil

	case CondMACDBullish:
		val := 0.0
		if mc.MACDHistogram != nil {
			val = *mc.MACDHistogram
		}
		return val > 0 && val > rule.Threshold, val, nil

	case CondVolumeSpike:
		ratio := 0.0
		if mc.AvgVolume != nil && *mc.AvgVolume > 0 {
			ratio = mc.Volume / *mc.AvgVolume
		}
		return ratio >= rule.Threshold, ratio, nil

	case CondPreScoreGT:
		val := float64(mc.PreScore)
		return val > rule.Threshold, val, nil
	}
	return false, 0, fmt.Errorf("unknown condition %q", rule.Condition)
}

// shouldReset applies the hysteresis reset predicate for TRIGGERED
// states. Directional conditions reset past threshold∓h; with h=0 the
// predicate reduces to the plain inverse of the trigger condition. The
// rest reset as soon as the condition goes false.
func shouldReset(rule Rule, value float64, met bool) bool {
	switch rule.Condition {
	case CondDipGT:
		return value < rule.Threshold-rule.HysteresisReset
	case CondRSILT:
		if rule.HysteresisReset == 0 {
			return value >= rule.Threshold
		}
		return value > rule.Threshold+rule.HysteresisReset
	default:
		return !met
	}
}

func (e *Engine) transition(state *State, to StateName, reason string) {
	from := state.State
	state.State = to
	state.LastTransitionAt = e.clk.Now()
	if to != StateArmed {
		state.FirstSignalAt = nil
	}
	if to != StateCooldown {
		state.CooldownUntil = nil
	}
	log.Info().Str("rule_id", state.RuleID).
		Str("symbol", state.Symbol).
		Str("from", string(from)).Str("to", string(to)).
		Str("reason", reason).
		Msg("Alert state transition")
}

// Evaluate runs one tick of the rule state machine against fresh
// market context and persists the resulting state.
func (e *Engine) Evaluate(ctx context.Context, rule Rule, mc MarketContext) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	state, err := e.states.GetState(ctx, rule.ID, rule.Symbol)
	if err != nil {
		return fmt.Errorf("load state for rule %s: %w", rule.ID, err)
	}

	now := e.clk.Now()

	// Cooldown resolves before any condition work.
	if state.State == StateCooldown {
		if state.CooldownUntil != nil && !now.Before(*state.CooldownUntil) {
			e.transition(&state, StateIdle, "Cooldown ended")
		} else {
			return e.states.SaveState(ctx, state)
		}
	}

	met, value, err := checkCondition(rule, mc)
	if err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	switch state.State {
	case StateIdle:
		if met {
			if rule.DebounceSeconds > 0 {
				e.transition(&state, StateArmed, "Condition met, starting debounce")
				signalAt := now
				state.FirstSignalAt = &signalAt
			} else {
				e.fire(ctx, rule, &state, value)
			}
		}

	case StateArmed:
		if met {
			if state.FirstSignalAt != nil && now.Sub(*state.FirstSignalAt) >= time.Duration(rule.DebounceSeconds)*time.Second {
				e.fire(ctx, rule, &state, value)
			}
		} else {
			e.transition(&state, StateIdle, "Condition lost during debounce")
		}

	case StateTriggered:
		if shouldReset(rule, value, met) {
			until := now.Add(time.Duration(rule.CooldownSeconds) * time.Second)
			e.transition(&state, StateCooldown, "Entering cooldown")
			state.CooldownUntil = &until
		}
	}

	state.LastValue = &value

	if err := e.states.SaveState(ctx, state); err != nil {
		return fmt.Errorf("save state for rule %s: %w", rule.ID, err)
	}
	return nil
}

// fire runs the trigger sub-protocol: quiet-hours gate, budget check,
// then build/dispatch/consume. The state always lands in TRIGGERED so
// a suppressed rule does not re-fire every tick.
func (e *Engine) fire(ctx context.Context, rule Rule, state *State, value float64) {
	now := e.clk.Now()

	var reason SuppressionReason
	if e.noise.InQuietHours() && rule.Priority != PriorityHigh {
		reason = SuppressQuietHours
	} else if e.noise.BudgetExceeded(ctx, rule.UserID, rule.Symbol) {
		reason = SuppressBudget
	}

	if reason != "" {
		metrics.Suppressions.WithLabelValues(string(reason)).Inc()
		e.logSuppression(ctx, rule, reason)
		e.transition(state, StateTriggered, fmt.Sprintf("Triggered but suppressed: %s", reason))
		state.LastTriggeredAt = &now
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Symbol:    rule.Symbol,
		FiredAt:   now,
		Priority:  rule.Priority,
		Value:     value,
		Threshold: rule.Threshold,
		Message:   formatMessage(rule, value),
		Chips:     []string{fmt.Sprintf("%s %.2f", rule.Condition, value)},
		Payload:   map[string]interface{}{"value": value},
	}

	event.PushSent = e.notifier.Dispatch(ctx, event)

	if e.events != nil {
		if err := e.events.RecordEvent(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Event record failed")
		}
	}

	e.noise.ConsumeBudget(ctx, rule.UserID, rule.Symbol)
	metrics.AlertsFired.Inc()
	e.transition(state, StateTriggered, "Alert fired")
	state.LastTriggeredAt = &now

	log.Info().Str("symbol", rule.Symbol).
		Str("rule_id", rule.ID).
		Bool("push_sent", event.PushSent).
		Msg(event.Message)
}

func formatMessage(rule Rule, value float64) string {
	switch rule.Condition {
	case CondDipGT:
		return fmt.Sprintf("Dip reached %.1f%% (threshold %.1f%%)", value, rule.Threshold)
	case CondRSILT:
		return fmt.Sprintf("RSI dropped to %.1f (threshold %.1f)", value, rule.Threshold)
	case CondVolumeSpike:
		return fmt.Sprintf("Volume spiked to %.1fx average (threshold %.1fx)", value, rule.Threshold)
	case CondPreScoreGT:
		return fmt.Sprintf("Pre-score reached %.0f (threshold %.0f)", value, rule.Threshold)
	}
	return fmt.Sprintf("Alert triggered: %s = %.2f", rule.Condition, value)
}

func (e *Engine) logSuppression(ctx context.Context, rule Rule, reason SuppressionReason) {
	entry := Suppression{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Symbol:    rule.Symbol,
		Timestamp: e.clk.Now(),
		Reason:    reason,
	}
	if err := e.suppressions.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Str("reason", string(reason)).Msg("Suppression log failed")
	}
	log.Debug().Str("rule_id", rule.ID).Str("symbol", rule.Symbol).
		Str("reason", string(reason)).Msg("Alert suppressed")
}
