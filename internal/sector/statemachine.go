package sector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/clock"
)

// State is the sector monitoring state.
type State string

const (
	StateNormal   State = "normal"
	StateWatch    State = "watch"
	StateAlert    State = "alert"
	StateCooldown State = "cooldown"
)

const maxEventHistory = 100

// Thresholds configure state entry, hysteresis exit, cooldown and
// worsen re-alert behavior.
type Thresholds struct {
	WatchDipMin        float64 `yaml:"watch_dip_min"`
	WatchRSI40Min      float64 `yaml:"watch_rsi40_breadth_min"`
	AlertDipMin        float64 `yaml:"alert_dip_min"`
	AlertRSI40Min      float64 `yaml:"alert_rsi40_breadth_min"`
	AlertLowerBandMin  float64 `yaml:"alert_lowerband_breadth_min"`
	WatchExitDip       float64 `yaml:"watch_exit_dip"`
	WatchExitRSI40     float64 `yaml:"watch_exit_rsi40"`
	AlertExitDip       float64 `yaml:"alert_exit_dip"`
	AlertExitRSI40     float64 `yaml:"alert_exit_rsi40"`
	CooldownSeconds    int     `yaml:"cooldown_seconds"`
	DipWorsenDelta     float64 `yaml:"dip_worsen_threshold"`
	BreadthWorsenDelta float64 `yaml:"breadth_worsen_threshold"`
}

// DefaultThresholds returns the canonical parameterisation.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WatchDipMin:        5.0,
		WatchRSI40Min:      0.35,
		AlertDipMin:        8.0,
		AlertRSI40Min:      0.45,
		AlertLowerBandMin:  0.55,
		WatchExitDip:       4.0,
		WatchExitRSI40:     0.33,
		AlertExitDip:       7.0,
		AlertExitRSI40:     0.43,
		CooldownSeconds:    1800,
		DipWorsenDelta:     2.0,
		BreadthWorsenDelta: 0.10,
	}
}

// Event is emitted on every state change.
type Event struct {
	EventID       string    `json:"event_id"`
	SectorID      string    `json:"sector_id"`
	Ts            time.Time `json:"ts"`
	PreviousState State     `json:"previous_state"`
	NewState      State     `json:"new_state"`
	Metrics       Snapshot  `json:"metrics_snapshot"`
	TriggerReason string    `json:"trigger_reason"`
}

// IsWorsen reports whether this event was forced by worsening metrics
// during cooldown.
func (e Event) IsWorsen() bool {
	return strings.Contains(strings.ToLower(e.TriggerReason), "worsen")
}

// StateRecord tracks the current state and bounded history per sector.
type StateRecord struct {
	SectorID         string     `json:"sector_id"`
	CurrentState     State      `json:"current_state"`
	LastTransition   time.Time  `json:"last_transition"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
	LastAlertMetrics *Snapshot  `json:"last_alert_metrics,omitempty"`
	History          []Event    `json:"history"`
}

// StateMachine owns all sector state records. Update calls for the
// same sector must come from a single goroutine (the sector refresh
// job); the internal lock protects readers on other goroutines.
type StateMachine struct {
	mu         sync.RWMutex
	thresholds Thresholds
	clk        clock.Clock
	records    map[string]*StateRecord
}

// NewStateMachine builds a state machine with the given thresholds.
func NewStateMachine(thresholds Thresholds, clk clock.Clock) *StateMachine {
	return &StateMachine{
		thresholds: thresholds,
		clk:        clk,
		records:    make(map[string]*StateRecord),
	}
}

func (sm *StateMachine) meetsWatch(s Snapshot) bool {
	return s.DipPct >= sm.thresholds.WatchDipMin && s.RSI40Breadth >= sm.thresholds.WatchRSI40Min
}

func (sm *StateMachine) meetsAlert(s Snapshot) bool {
	return s.DipPct >= sm.thresholds.AlertDipMin &&
		(s.RSI40Breadth >= sm.thresholds.AlertRSI40Min || s.LowerBandBreadth >= sm.thresholds.AlertLowerBandMin)
}

func (sm *StateMachine) shouldExitWatch(s Snapshot) bool {
	return s.DipPct < sm.thresholds.WatchExitDip || s.RSI40Breadth < sm.thresholds.WatchExitRSI40
}

func (sm *StateMachine) shouldExitAlert(s Snapshot) bool {
	return s.DipPct < sm.thresholds.AlertExitDip || s.RSI40Breadth < sm.thresholds.AlertExitRSI40
}

func (sm *StateMachine) worsened(current Snapshot, last *Snapshot) bool {
	if last == nil {
		return false
	}
	return current.DipPct-last.DipPct >= sm.thresholds.DipWorsenDelta ||
		current.RSI40Breadth-last.RSI40Breadth >= sm.thresholds.BreadthWorsenDelta
}

// Update feeds one snapshot into the sector's state machine and
// returns an event when the state changed, nil otherwise.
func (sm *StateMachine) Update(sectorID string, snapshot Snapshot) *Event {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.clk.Now()

	record, ok := sm.records[sectorID]
	if !ok {
		record = &StateRecord{
			SectorID:       sectorID,
			CurrentState:   StateNormal,
			LastTransition: now,
		}
		sm.records[sectorID] = record
	}

	current := record.CurrentState
	newState := current
	reason := ""

	switch current {
	case StateNormal:
		if sm.meetsAlert(snapshot) {
			newState = StateAlert
			reason = "Alert criteria met"
		} else if sm.meetsWatch(snapshot) {
			newState = StateWatch
			reason = "Watch criteria met"
		}

	case StateWatch:
		if sm.meetsAlert(snapshot) {
			newState = StateAlert
			reason = "Escalated from WATCH to ALERT"
		} else if sm.shouldExitWatch(snapshot) {
			newState = StateNormal
			reason = "Watch criteria no longer met"
		}

	case StateAlert:
		if sm.shouldExitAlert(snapshot) {
			// Through cooldown, never straight back to normal.
			newState = StateCooldown
			until := now.Add(time.Duration(sm.thresholds.CooldownSeconds) * time.Second)
			record.CooldownUntil = &until
			saved := snapshot
			record.LastAlertMetrics = &saved
			reason = "Alert ended, entering cooldown"
		}

	case StateCooldown:
		if record.CooldownUntil != nil && !now.Before(*record.CooldownUntil) {
			newState = StateNormal
			reason = "Cooldown expired"
		} else if sm.worsened(snapshot, record.LastAlertMetrics) {
			newState = StateAlert
			reason = "Conditions worsened during cooldown"
		}
	}

	if newState == current {
		return nil
	}

	if newState != StateCooldown {
		record.CooldownUntil = nil
	}
	if newState == StateAlert || newState == StateCooldown {
		if record.LastAlertMetrics == nil || newState == StateAlert {
			saved := snapshot
			record.LastAlertMetrics = &saved
		}
	} else {
		record.LastAlertMetrics = nil
	}

	event := Event{
		EventID:       fmt.Sprintf("%s_%d", sectorID, now.Unix()),
		SectorID:      sectorID,
		Ts:            now,
		PreviousState: current,
		NewState:      newState,
		Metrics:       snapshot,
		TriggerReason: reason,
	}

	record.CurrentState = newState
	record.LastTransition = now
	record.History = append(record.History, event)
	if len(record.History) > maxEventHistory {
		record.History = record.History[len(record.History)-maxEventHistory:]
	}

	log.Info().Str("sector", sectorID).
		Str("from", string(current)).Str("to", string(newState)).
		Str("reason", reason).
		Float64("dip_pct", snapshot.DipPct).
		Float64("rsi40_breadth", snapshot.RSI40Breadth).
		Msg("Sector state transition")

	return &event
}

// CurrentState returns the sector's state, NORMAL for unknown sectors.
func (sm *StateMachine) CurrentState(sectorID string) State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if r, ok := sm.records[sectorID]; ok {
		return r.CurrentState
	}
	return StateNormal
}

// History returns up to limit most recent events for a sector.
func (sm *StateMachine) History(sectorID string, limit int) []Event {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	r, ok := sm.records[sectorID]
	if !ok {
		return nil
	}
	history := r.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]Event, len(history))
	copy(out, history)
	return out
}

// Record returns a copy of the sector's state record.
func (sm *StateMachine) Record(sectorID string) (StateRecord, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	r, ok := sm.records[sectorID]
	if !ok {
		return StateRecord{}, false
	}
	return *r, true
}
