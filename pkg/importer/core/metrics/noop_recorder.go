package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// NoOpMetricRecorder is used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordChunk(ctx context.Context, outcome string, rows int, duration time.Duration) {
}
func (r *NoOpMetricRecorder) RecordRows(ctx context.Context, success, errors int)        {}
func (r *NoOpMetricRecorder) RecordRetry(ctx context.Context, reason string)             {}
func (r *NoOpMetricRecorder) RecordRejection(ctx context.Context, reason string)         {}
func (r *NoOpMetricRecorder) RecordBreakerState(ctx context.Context, name, state string) {}
func (r *NoOpMetricRecorder) RecordDispatch(ctx context.Context, chunks int, callerRuns bool) {
}
func (r *NoOpMetricRecorder) RecordJobFinished(ctx context.Context, status model.JobStatus) {}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, msg model.ChunkMessage) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartDispatchSpan(ctx context.Context, jobID string) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
