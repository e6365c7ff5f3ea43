// Package dispatch splits a validated upload into chunk messages and publishes them.
package dispatch

import (
	"context"
	"fmt"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// MsgNoDataRows is the job error of an upload without data rows.
const MsgNoDataRows = "file contains no data rows"

// Request describes one job to dispatch.
type Request struct {
	JobID   string
	FileRef string
	Contact string
	// ChunkSize overrides the configured chunk size when positive.
	ChunkSize int
}

// Dispatcher counts the rows of a file, records the total and publishes one message
// per chunk. Any failure moves the job to ERROR and notifies the requester.
type Dispatcher struct {
	jobs      repository.JobRepository
	reader    ports.RowReader
	publisher ports.ChunkPublisher
	notifier  ports.Notifier
	pool      *Pool
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
	chunkSize int
}

// NewDispatcher creates a Dispatcher. recorder and tracer may be nil.
func NewDispatcher(
	jobs repository.JobRepository,
	reader ports.RowReader,
	publisher ports.ChunkPublisher,
	notifier ports.Notifier,
	pool *Pool,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
	chunkSize int,
) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	if chunkSize <= 0 {
		chunkSize = model.DefaultChunkSize
	}
	return &Dispatcher{
		jobs:      jobs,
		reader:    reader,
		publisher: publisher,
		notifier:  notifier,
		pool:      pool,
		recorder:  recorder,
		tracer:    tracer,
		chunkSize: chunkSize,
	}
}

// Submit hands the request to the pool and returns at once, unless the queue is
// full, in which case the dispatch runs before Submit returns.
func (d *Dispatcher) Submit(req Request) {
	d.pool.Submit(func(ctx context.Context, callerRuns bool) {
		chunks, err := d.Dispatch(ctx, req)
		if err != nil {
			return
		}
		d.recorder.RecordDispatch(ctx, chunks, callerRuns)
	})
}

// SubmitJob submits a dispatch with the configured chunk size.
func (d *Dispatcher) SubmitJob(jobID, fileRef, contact string) {
	d.Submit(Request{JobID: jobID, FileRef: fileRef, Contact: contact})
}

// Dispatch runs the whole dispatch synchronously and returns the number of chunks
// published.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (int, error) {
	ctx, end := d.tracer.StartDispatchSpan(ctx, req.JobID)
	defer end()

	total, err := d.reader.CountRows(ctx, req.FileRef)
	if err != nil {
		return 0, d.fail(ctx, req, "Error reading file: "+exception.ExtractErrorMessage(err), err)
	}
	if total == 0 {
		return 0, d.fail(ctx, req, MsgNoDataRows, nil)
	}
	if err := d.jobs.SetTotal(ctx, req.JobID, total); err != nil {
		return 0, d.fail(ctx, req, "Error starting processing: "+exception.ExtractErrorMessage(err), err)
	}
	if job, err := d.jobs.FindByID(ctx, req.JobID); err == nil {
		d.notifier.NotifyProgress(ctx, job)
	}

	size := req.ChunkSize
	if size <= 0 {
		size = d.chunkSize
	}
	ranges := model.Partition(total, size)
	logger.Infof("Dispatching job %s: %d rows in %d chunks of %d.", req.JobID, total, len(ranges), size)

	for _, r := range ranges {
		msg := model.NewChunkMessage(req.JobID, req.FileRef, req.Contact, r, len(ranges))
		if err := d.publisher.PublishChunk(ctx, msg); err != nil {
			text := fmt.Sprintf("Error sending chunk %d/%d: %s", r.Index+1, len(ranges), exception.ExtractErrorMessage(err))
			return r.Index, d.fail(ctx, req, text, err)
		}
	}
	logger.Infof("Job %s dispatched.", req.JobID)
	return len(ranges), nil
}

func (d *Dispatcher) fail(ctx context.Context, req Request, message string, cause error) error {
	logger.Errorf("Dispatch of job %s failed: %s", req.JobID, message)
	d.tracer.RecordError(ctx, "dispatcher", cause)

	marked, err := d.jobs.MarkError(ctx, req.JobID, message)
	if err != nil {
		logger.Errorf("Could not mark job %s as failed: %v", req.JobID, err)
	}
	if marked {
		d.notifier.NotifyFailed(ctx, req.Contact, req.JobID, message)
	}
	if cause == nil {
		return exception.NewValidationError("dispatcher", message, nil)
	}
	return exception.NewImportError("dispatcher", message, exception.KindOf(cause), cause)
}
