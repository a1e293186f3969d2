// Package metrics exposes Prometheus instruments for the question pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nlq2sql"

var (
	// entitiesDetectedTotal counts normalized entities by category.
	entitiesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extraction",
		Name:      "entities_total",
		Help:      "Entities detected, by category",
	}, []string{"category"})

	// codingLookupsTotal counts coding lookups by vocabulary and outcome (hit, empty, error).
	codingLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "disambiguation",
		Name:      "coding_lookups_total",
		Help:      "Coding lookups by vocabulary and outcome",
	}, []string{"vocabulary", "outcome"})

	// canonicalMissesTotal counts surface texts no pattern recognized.
	canonicalMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "disambiguation",
		Name:      "canonical_misses_total",
		Help:      "Entities left as [NOT FOUND], by category",
	}, []string{"category"})

	// macrosExpandedTotal counts rendered macros by family.
	macrosExpandedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "macros_expanded_total",
		Help:      "Macros expanded, by family",
	}, []string{"family"})

	// macrosUnexpandedTotal counts macros left in rendered SQL.
	macrosUnexpandedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "macros_unexpanded_total",
		Help:      "Macros left unexpanded because no generator is registered",
	})

	// stageDuration measures each pipeline stage.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	// stageErrorsTotal counts failed pipeline stages.
	stageErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_errors_total",
		Help:      "Pipeline stage failures",
	}, []string{"stage"})

	// injectionFlagsTotal counts query arguments libinjection flagged.
	injectionFlagsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "injection_flags_total",
		Help:      "Query arguments flagged as possible SQL injection",
	})

	// feedbackTotal counts feedback records by verdict.
	feedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feedback",
		Name:      "records_total",
		Help:      "Feedback records by verdict",
	}, []string{"correct"})
)

// Outcomes of a coding lookup.
const (
	LookupHit   = "hit"
	LookupEmpty = "empty"
	LookupError = "error"
)

// RecordEntities adds detected entity counts per category.
func RecordEntities(counts map[string]int) {
	for category, n := range counts {
		entitiesDetectedTotal.WithLabelValues(category).Add(float64(n))
	}
}

// RecordCodingLookup records one coding lookup.
func RecordCodingLookup(vocabulary, outcome string) {
	codingLookupsTotal.WithLabelValues(vocabulary, outcome).Inc()
}

// RecordCanonicalMiss records an entity no canonical pattern recognized.
func RecordCanonicalMiss(category string) {
	canonicalMissesTotal.WithLabelValues(category).Inc()
}

// RecordRender records the macros one render expanded and left behind.
func RecordRender(schema, templatedArgs, args, templatesOnly, unexpanded int) {
	macrosExpandedTotal.WithLabelValues("schema").Add(float64(schema))
	macrosExpandedTotal.WithLabelValues("templated_argument").Add(float64(templatedArgs))
	macrosExpandedTotal.WithLabelValues("argument").Add(float64(args))
	macrosExpandedTotal.WithLabelValues("template").Add(float64(templatesOnly))
	macrosUnexpandedTotal.Add(float64(unexpanded))
}

// RecordInjectionFlags records query arguments flagged by libinjection.
func RecordInjectionFlags(n int) {
	injectionFlagsTotal.Add(float64(n))
}

// RecordFeedback records one feedback verdict.
func RecordFeedback(correct bool) {
	label := "false"
	if correct {
		label = "true"
	}
	feedbackTotal.WithLabelValues(label).Inc()
}

// ObserveStage records a stage duration and, when err is non-nil, a failure.
func ObserveStage(stage string, start time.Time, err error) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		stageErrorsTotal.WithLabelValues(stage).Inc()
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
