package sector

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dipwatch/dipwatch/internal/clock"
	"github.com/dipwatch/dipwatch/internal/scoring"
)

const (
	maxBundleHistory     = 20
	bundleCooldownMinute = 30
)

// SuggestionBundle snapshots the ranked candidate list attached to a
// qualifying sector event. Immutable after creation.
type SuggestionBundle struct {
	BundleID     string                    `json:"bundle_id"`
	EventID      string                    `json:"event_id"`
	SectorID     string                    `json:"sector_id"`
	Ts           time.Time                 `json:"ts"`
	Candidates   []scoring.RankedCandidate `json:"candidates"`
	SeverityTags []string                  `json:"severity_tags"`
}

// Emitter creates suggestion bundles on qualifying sector events with
// deduplication and a per-sector cooldown.
type Emitter struct {
	mu           sync.Mutex
	clk          clock.Clock
	bundles      map[string][]SuggestionBundle
	lastBundleAt map[string]time.Time
}

// NewEmitter builds an emitter against the given clock.
func NewEmitter(clk clock.Clock) *Emitter {
	return &Emitter{
		clk:          clk,
		bundles:      make(map[string][]SuggestionBundle),
		lastBundleAt: make(map[string]time.Time),
	}
}

func severityTags(event Event) []string {
	var tags []string
	if event.Metrics.DipPct > 15 {
		tags = append(tags, "dip_severity: major")
	} else if event.Metrics.DipPct > 10 {
		tags = append(tags, "dip_severity: moderate")
	}
	if event.Metrics.RSI40Breadth > 0.6 {
		tags = append(tags, "breadth: high")
	}
	return tags
}

func (e *Emitter) shouldEmit(event Event) bool {
	// Fresh ALERT transitions always emit.
	if event.NewState == StateAlert && event.PreviousState != StateAlert {
		return true
	}

	if last, ok := e.lastBundleAt[event.SectorID]; ok {
		if e.clk.Now().Sub(last) < bundleCooldownMinute*time.Minute {
			// Worsen triggers override the dedup window.
			return event.IsWorsen()
		}
	}
	return true
}

// Emit creates and stores a bundle when the event qualifies. Returns
// nil when suppressed or when there are no candidates to suggest.
func (e *Emitter) Emit(event Event, candidates []scoring.RankedCandidate) *SuggestionBundle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.shouldEmit(event) || len(candidates) == 0 {
		return nil
	}

	now := e.clk.Now()
	bundle := SuggestionBundle{
		BundleID:     fmt.Sprintf("bundle_%s_%d", event.SectorID, now.Unix()),
		EventID:      event.EventID,
		SectorID:     event.SectorID,
		Ts:           now,
		Candidates:   append([]scoring.RankedCandidate(nil), candidates...),
		SeverityTags: severityTags(event),
	}

	e.bundles[event.SectorID] = append(e.bundles[event.SectorID], bundle)
	if len(e.bundles[event.SectorID]) > maxBundleHistory {
		e.bundles[event.SectorID] = e.bundles[event.SectorID][len(e.bundles[event.SectorID])-maxBundleHistory:]
	}
	e.lastBundleAt[event.SectorID] = now

	log.Info().Str("bundle_id", bundle.BundleID).
		Str("sector", event.SectorID).
		Int("candidates", len(candidates)).
		Strs("severity_tags", bundle.SeverityTags).
		Msg("Suggestion bundle emitted")

	return &bundle
}

// Latest returns the most recent bundle for a sector.
func (e *Emitter) Latest(sectorID string) *SuggestionBundle {
	e.mu.Lock()
	defer e.mu.Unlock()
	bundles := e.bundles[sectorID]
	if len(bundles) == 0 {
		return nil
	}
	b := bundles[len(bundles)-1]
	return &b
}

// History returns all retained bundles for a sector, oldest first.
func (e *Emitter) History(sectorID string) []SuggestionBundle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SuggestionBundle, len(e.bundles[sectorID]))
	copy(out, e.bundles[sectorID])
	return out
}
