package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for pipeline metrics.
//
// Built on Prometheus, the metrics track:
//   - Dataset rows flowing in from the hub API or local files
//   - Examples written to each output split
//   - Rerank API request counts and latency per model
//   - Evaluation outcomes per model
//   - Error rates by component
type Metrics struct {
	// RowsFetched counts dataset rows loaded into the pipeline.
	// Labels: source (api|file)
	RowsFetched *prometheus.CounterVec

	// ExamplesWritten counts examples serialized to each split file.
	// Labels: split (train|valid|test)
	ExamplesWritten *prometheus.CounterVec

	// RerankRequestCounter counts rerank API requests.
	// Labels: model, status (success|error)
	RerankRequestCounter *prometheus.CounterVec

	// RerankRequestDuration measures rerank API call latency in seconds.
	// Labels: model
	// Buckets: 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s, 30s
	RerankRequestDuration *prometheus.HistogramVec

	// EvalOutcomes counts evaluated examples by outcome.
	// Labels: model, outcome (correct|incorrect)
	EvalOutcomes *prometheus.CounterVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (loader|shaper|writer|rerank|eval), error_type
	ErrorCounter *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers all Prometheus metrics with the default
// registry. Registration happens once per process; later calls return the
// same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktune_rows_fetched_total",
				Help: "Total number of dataset rows fetched by source",
			},
			[]string{"source"},
		),

		ExamplesWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktune_examples_written_total",
				Help: "Total number of examples written per output split",
			},
			[]string{"split"},
		),

		RerankRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktune_rerank_requests_total",
				Help: "Total number of rerank API requests by model and status",
			},
			[]string{"model", "status"},
		),

		RerankRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranktune_rerank_request_duration_seconds",
				Help:    "Duration of rerank API requests in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"model"},
		),

		EvalOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktune_eval_examples_total",
				Help: "Total number of evaluated examples by model and outcome",
			},
			[]string{"model", "outcome"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranktune_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordRowsFetched adds fetched row counts for a source.
func (m *Metrics) RecordRowsFetched(source string, n int) {
	if n > 0 {
		m.RowsFetched.WithLabelValues(source).Add(float64(n))
	}
}

// RecordExamplesWritten adds written example counts for a split.
func (m *Metrics) RecordExamplesWritten(split string, n int) {
	if n > 0 {
		m.ExamplesWritten.WithLabelValues(split).Add(float64(n))
	}
}

// RecordRerankRequest records one rerank API request.
//
// Example:
//
//	start := time.Now()
//	// ... call rerank API ...
//	metrics.RecordRerankRequest("rerank-english-v2.0", "success", time.Since(start).Seconds())
func (m *Metrics) RecordRerankRequest(model, status string, durationSeconds float64) {
	m.RerankRequestCounter.WithLabelValues(model, status).Inc()
	m.RerankRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordEvalOutcome records one evaluated example.
func (m *Metrics) RecordEvalOutcome(model string, correct bool) {
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	m.EvalOutcomes.WithLabelValues(model, outcome).Inc()
}

// RecordError increments the error counter for a component.
//
// Example:
//
//	metrics.RecordError("rerank", "api_timeout")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}
