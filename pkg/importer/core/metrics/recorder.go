// Package metrics declares the observability contracts of the pipeline.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// Chunk outcomes used as metric labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeRejected = "rejected"
)

// MetricRecorder records pipeline metrics. Implementations must be safe for concurrent use.
type MetricRecorder interface {
	// RecordChunk records one chunk attempt cycle with its outcome and duration.
	RecordChunk(ctx context.Context, outcome string, rows int, duration time.Duration)
	// RecordRows records classified rows.
	RecordRows(ctx context.Context, success, errors int)
	// RecordRetry records a retried attempt, labelled with the error kind.
	RecordRetry(ctx context.Context, reason string)
	// RecordRejection records a call shed by the breaker or bulkhead.
	RecordRejection(ctx context.Context, reason string)
	// RecordBreakerState records a circuit breaker state change.
	RecordBreakerState(ctx context.Context, name, state string)
	// RecordDispatch records a dispatched job and whether the caller ran it itself.
	RecordDispatch(ctx context.Context, chunks int, callerRuns bool)
	// RecordJobFinished records a job reaching a terminal status.
	RecordJobFinished(ctx context.Context, status model.JobStatus)
	// RecordDuration records the duration of a named operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Tracer wraps units of work in spans.
type Tracer interface {
	// StartChunkSpan starts a span for a chunk. The returned function ends it.
	StartChunkSpan(ctx context.Context, msg model.ChunkMessage) (context.Context, func())
	// StartDispatchSpan starts a span for the dispatch of a job.
	StartDispatchSpan(ctx context.Context, jobID string) (context.Context, func())
	// RecordError records err on the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
