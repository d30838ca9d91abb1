package prometheus

import "github.com/prometheus/client_golang/prometheus"

const (
	operationDurationBucketStart  = 0.005
	operationDurationBucketFactor = 2.0
	operationDurationBucketCount  = 14
)

const (
	analysisBucketStart  = 0.25
	analysisBucketFactor = 2.0
	analysisBucketCount  = 10
)

var LifecycleOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "lifecycle_operation_duration_seconds",
		Help: "Time taken to execute a session lifecycle operation",
		Buckets: prometheus.ExponentialBuckets(
			operationDurationBucketStart,
			operationDurationBucketFactor,
			operationDurationBucketCount,
		),
	},
	[]string{"operation"},
)

var SessionTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_transitions_total",
		Help: "Committed session status transitions",
	},
	[]string{"to_status"},
)

var AnalysisDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name: "problem_analysis_duration_seconds",
		Help: "Time taken to structure a problem via the analysis service",
		Buckets: prometheus.ExponentialBuckets(
			analysisBucketStart,
			analysisBucketFactor,
			analysisBucketCount,
		),
	},
)

var AnalysisFallbacks = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "problem_analysis_fallbacks_total",
		Help: "Problem analyses that fell back to the static structure",
	},
)

var RatingRecomputes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "rating_recomputes_total",
		Help: "Expert rating recomputations",
	},
)

var ArtifactOperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "artifact_operation_duration_seconds",
		Help: "Time taken to store a session artifact",
		Buckets: prometheus.ExponentialBuckets(
			operationDurationBucketStart,
			operationDurationBucketFactor,
			operationDurationBucketCount,
		),
	},
	[]string{"operation"},
)

var OutboxRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "event_outbox_retries_total",
		Help: "Event publish retries served from the outbox",
	},
)

func init() {
	prometheus.MustRegister(LifecycleOperationDuration)
	prometheus.MustRegister(SessionTransitions)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisFallbacks)
	prometheus.MustRegister(RatingRecomputes)
	prometheus.MustRegister(ArtifactOperationDuration)
	prometheus.MustRegister(OutboxRetries)
}
