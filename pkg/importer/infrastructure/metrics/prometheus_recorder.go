// Package metrics implements the metric recorder on Prometheus and the tracer on
// OpenTelemetry.
package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	metrics "github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// PrometheusRecorder records pipeline metrics into its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	chunkDurationSeconds *prometheus.HistogramVec
	chunkTotal           *prometheus.CounterVec
	chunkRows            *prometheus.CounterVec
	rowsTotal            *prometheus.CounterVec
	retryTotal           *prometheus.CounterVec
	rejectionTotal       *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
	dispatchTotal        *prometheus.CounterVec
	dispatchChunks       prometheus.Histogram
	jobFinishedTotal     *prometheus.CounterVec
	operationSeconds     *prometheus.HistogramVec
}

// breakerStates are the values exported by the breaker state gauge.
var breakerStates = []string{"CLOSED", "OPEN", "HALF_OPEN"}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "import_chunk_duration_seconds",
			Help:    "Duration of chunk processing, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		chunkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_chunk_total",
			Help: "Chunks handled by outcome.",
		}, []string{"outcome"}),
		chunkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_chunk_rows_total",
			Help: "Rows covered by handled chunks by outcome.",
		}, []string{"outcome"}),
		rowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Classified rows by result.",
		}, []string{"result"}),
		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_retry_total",
			Help: "Retried chunk attempts by error kind.",
		}, []string{"reason"}),
		rejectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_rejection_total",
			Help: "Calls shed by the bulkhead or the circuit breaker.",
		}, []string{"reason"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "import_circuit_breaker_state",
			Help: "1 for the current state of each circuit breaker, 0 otherwise.",
		}, []string{"name", "state"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_dispatch_total",
			Help: "Dispatched jobs, by whether the submitting goroutine ran the dispatch.",
		}, []string{"caller_runs"}),
		dispatchChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "import_dispatch_chunks",
			Help:    "Chunks published per job.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		jobFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_job_finished_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"status"}),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "import_operation_duration_seconds",
			Help:    "Duration of named operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "tags"}),
	}

	registry.MustRegister(
		r.chunkDurationSeconds,
		r.chunkTotal,
		r.chunkRows,
		r.rowsTotal,
		r.retryTotal,
		r.rejectionTotal,
		r.breakerState,
		r.dispatchTotal,
		r.dispatchChunks,
		r.jobFinishedTotal,
		r.operationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *PrometheusRecorder) RecordChunk(ctx context.Context, outcome string, rows int, duration time.Duration) {
	r.chunkTotal.WithLabelValues(outcome).Inc()
	r.chunkRows.WithLabelValues(outcome).Add(float64(rows))
	r.chunkDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordRows(ctx context.Context, success, errors int) {
	r.rowsTotal.WithLabelValues("success").Add(float64(success))
	r.rowsTotal.WithLabelValues("error").Add(float64(errors))
}

func (r *PrometheusRecorder) RecordRetry(ctx context.Context, reason string) {
	r.retryTotal.WithLabelValues(reason).Inc()
}

func (r *PrometheusRecorder) RecordRejection(ctx context.Context, reason string) {
	r.rejectionTotal.WithLabelValues(reason).Inc()
}

// RecordBreakerState sets the gauge of the new state to 1 and the others to 0.
func (r *PrometheusRecorder) RecordBreakerState(ctx context.Context, name, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.breakerState.WithLabelValues(name, s).Set(v)
	}
	logger.Infof("Metrics: circuit breaker '%s' is now %s.", name, state)
}

func (r *PrometheusRecorder) RecordDispatch(ctx context.Context, chunks int, callerRuns bool) {
	label := "false"
	if callerRuns {
		label = "true"
	}
	r.dispatchTotal.WithLabelValues(label).Inc()
	r.dispatchChunks.Observe(float64(chunks))
}

func (r *PrometheusRecorder) RecordJobFinished(ctx context.Context, status model.JobStatus) {
	r.jobFinishedTotal.WithLabelValues(status.String()).Inc()
}

// RecordDuration records a named operation. Tags are folded into one label as
// sorted "k=v" pairs.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name, foldTags(tags)).Observe(duration.Seconds())
}

func foldTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
