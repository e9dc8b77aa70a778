package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion pipeline and search cache Prometheus metrics.
var (
	StageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalesearch",
			Name:      "pipeline_stage_outcomes_total",
			Help:      "Stage executions by outcome (ok, retry, failed)",
		},
		[]string{"stage", "outcome"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scalesearch",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	TasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scalesearch",
			Name:      "pipeline_tasks_submitted_total",
			Help:      "Total tasks submitted for ingestion",
		},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scalesearch",
			Name:      "search_cache_total",
			Help:      "Search response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline and search metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageOutcomesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(TasksSubmittedTotal)
	prometheus.MustRegister(SearchCacheTotal)
	pipelineMetricsRegistered = true
}
