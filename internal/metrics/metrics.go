// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDuration tracks wall time per scheduled job run.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dipwatch",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of scheduled evaluation cycles",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"job"})

	// AlertsFired counts successfully dispatched alert events.
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "alerts_fired_total",
		Help:      "Alert events dispatched to notification providers",
	})

	// Suppressions counts denied triggers by reason.
	Suppressions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "suppressions_total",
		Help:      "Alert triggers suppressed by noise control",
	}, []string{"reason"})

	// SectorTransitions counts sector state changes by target state.
	SectorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "sector_transitions_total",
		Help:      "Sector state machine transitions",
	}, []string{"to"})

	// BundlesEmitted counts suggestion bundles.
	BundlesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "bundles_emitted_total",
		Help:      "Suggestion bundles emitted on sector events",
	})

	// SymbolsSkipped counts symbols skipped in a cycle for lack of
	// bars.
	SymbolsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "symbols_skipped_total",
		Help:      "Symbols skipped due to missing or insufficient bars",
	})

	// FetchErrors counts bar-source failures after retries.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dipwatch",
		Name:      "fetch_errors_total",
		Help:      "Bar fetches that failed after retries",
	})
)
