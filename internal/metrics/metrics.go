// Package metrics exposes Prometheus instrumentation for digest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teamdigest"

var (
	// NarrativeFallbacks counts digests rendered by the rule-based formatter
	// because the LLM failed, timed out or was not configured.
	NarrativeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "narrative_fallbacks_total",
		Help:      "Digests rendered by the rule-based fallback, by reason.",
	}, []string{"reason"})

	// DigestsBuilt counts digests by the source of their text.
	DigestsBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "digests_built_total",
		Help:      "Digests built, by text source (llm, fallback, placeholder).",
	}, []string{"source"})

	// DigestDuration observes end-to-end digest assembly time.
	DigestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "digest_duration_seconds",
		Help:      "Time to assemble one user digest.",
		Buckets:   prometheus.DefBuckets,
	})

	// NarrativeDuration observes LLM narrative calls, successful or not.
	NarrativeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "narrative_llm_duration_seconds",
		Help:      "Latency of narrative LLM calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// TopicsDiscovered reports the cluster count of the latest window run.
	TopicsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "topics_discovered",
		Help:      "Clusters found in the most recent topic discovery window.",
	})

	// ScheduledRuns counts cron-triggered digest runs by outcome.
	ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_runs_total",
		Help:      "Scheduled digest runs, by outcome (ok, error).",
	}, []string{"outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
