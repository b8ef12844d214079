package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels completed analyses.
	OutcomeSuccess = "success"
	// OutcomePartial labels analyses that returned assessments without a
	// narrative (generation outage).
	OutcomePartial = "partial"
	// OutcomeError labels failed analyses.
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_advisor",
			Name:      "analyses_total",
			Help:      "Total number of analyses handled, partitioned by intent and outcome.",
		},
		[]string{"intent", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "oracle_advisor",
			Name:      "analysis_seconds",
			Help:      "Analysis latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	generatorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_advisor",
			Name:      "generator_calls_total",
			Help:      "Completions requested from the generative backend, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oracle_advisor",
			Name:      "recommendation_cache_events_total",
			Help:      "Recommendation cache hits and misses.",
		},
		[]string{"event"},
	)

	ungroundedNarrativesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oracle_advisor",
			Name:      "ungrounded_narratives_total",
			Help:      "Narratives returned with the low-confidence flag after a failed grounding retry.",
		},
	)
)

// Register attaches advisor collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		generatorCallsTotal,
		cacheEventsTotal,
		ungroundedNarrativesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records one analysis duration with its intent and outcome.
func ObserveAnalysis(intent string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomePartial:
	default:
		outcome = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(intent, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveGeneratorCall counts one completion request outcome.
func ObserveGeneratorCall(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	generatorCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCacheHit counts a recommendation cache hit.
func ObserveCacheHit() { cacheEventsTotal.WithLabelValues("hit").Inc() }

// ObserveCacheMiss counts a recommendation cache miss.
func ObserveCacheMiss() { cacheEventsTotal.WithLabelValues("miss").Inc() }

// ObserveUngroundedNarrative counts a low-confidence narrative.
func ObserveUngroundedNarrative() { ungroundedNarrativesTotal.Inc() }
