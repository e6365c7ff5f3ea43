// Package consumer processes chunk messages: read, classify, persist, count and
// finalize, all under the resilience wrapper.
package consumer

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/processor"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/resilience"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// DeadLetterHandler receives chunks that failed terminally.
type DeadLetterHandler interface {
	Handle(ctx context.Context, msg model.ChunkMessage, cause error)
}

// Consumer handles chunk messages.
type Consumer struct {
	jobs       repository.JobRepository
	records    repository.RecordRepository
	rowErrors  repository.RowErrorRepository
	reader     ports.RowReader
	processor  *processor.Processor
	wrapper    *resilience.Wrapper
	notifier   ports.Notifier
	deadLetter DeadLetterHandler
	recorder   metrics.MetricRecorder
	tracer     metrics.Tracer
}

// Deps groups the collaborators of a Consumer. Recorder and Tracer may be nil.
type Deps struct {
	Jobs       repository.JobRepository
	Records    repository.RecordRepository
	RowErrors  repository.RowErrorRepository
	Reader     ports.RowReader
	Processor  *processor.Processor
	Wrapper    *resilience.Wrapper
	Notifier   ports.Notifier
	DeadLetter DeadLetterHandler
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
}

// NewConsumer creates a Consumer.
func NewConsumer(d Deps) *Consumer {
	if d.Recorder == nil {
		d.Recorder = metrics.NewNoOpMetricRecorder()
	}
	if d.Tracer == nil {
		d.Tracer = metrics.NewNoOpTracer()
	}
	if d.Processor == nil {
		d.Processor = processor.NewProcessor()
	}
	return &Consumer{
		jobs:       d.Jobs,
		records:    d.Records,
		rowErrors:  d.RowErrors,
		reader:     d.Reader,
		processor:  d.Processor,
		wrapper:    d.Wrapper,
		notifier:   d.Notifier,
		deadLetter: d.DeadLetter,
		recorder:   d.Recorder,
		tracer:     d.Tracer,
	}
}

// progress remembers which steps of a chunk already succeeded, so that a retried
// attempt does not record row errors or count rows twice.
type progress struct {
	skipped  bool
	result   *processor.Result
	written  bool
	counted  bool
	snapshot *model.Job
}

// HandleChunk processes msg under the wrapper. Terminal failures are passed to the
// dead-letter handler; nothing is returned to the transport.
func (c *Consumer) HandleChunk(ctx context.Context, msg model.ChunkMessage) {
	ctx, end := c.tracer.StartChunkSpan(ctx, msg)
	defer end()

	started := time.Now()
	p := &progress{}
	err := c.wrapper.Execute(ctx,
		func(ctx context.Context) error { return c.attempt(ctx, msg, p) },
		func(ctx context.Context, err error) {
			c.tracer.RecordError(ctx, "consumer", err)
			c.deadLetter.Handle(ctx, msg, err)
		},
	)

	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && exception.IsRejection(err):
		outcome = metrics.OutcomeRejected
	case err != nil:
		outcome = metrics.OutcomeFailed
	case p.skipped:
		outcome = metrics.OutcomeSkipped
	}
	c.recorder.RecordChunk(ctx, outcome, msg.RowCount(), time.Since(started))
}

// Process runs one unguarded attempt of msg. It is what HandleChunk wraps.
func (c *Consumer) Process(ctx context.Context, msg model.ChunkMessage) error {
	return c.attempt(ctx, msg, &progress{})
}

func (c *Consumer) attempt(ctx context.Context, msg model.ChunkMessage, p *progress) error {
	if !p.counted {
		job, err := c.jobs.FindByID(ctx, msg.JobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			logger.Infof("Job %s is %s; skipping %s.", job.ID, job.Status, msg)
			p.skipped = true
			return nil
		}

		if p.result == nil {
			rows, err := c.reader.ReadRows(ctx, msg.FileRef, msg.StartRow, msg.EndRow)
			if err != nil {
				return err
			}
			res := c.processor.ProcessRows(msg.JobID, rows)
			p.result = &res
		}
		res := p.result

		if !p.written {
			if len(res.Valid) > 0 {
				if _, err := c.records.UpsertAll(ctx, res.Valid); err != nil {
					return err
				}
			}
			if len(res.Errors) > 0 {
				if err := c.rowErrors.SaveAll(ctx, res.Errors); err != nil {
					return err
				}
			}
			p.written = true
		}

		processed := len(res.Valid) + len(res.Errors)
		if processed > 0 {
			snapshot, err := c.jobs.IncrementCounters(ctx, msg.JobID, processed, len(res.Valid), len(res.Errors))
			if err != nil {
				return err
			}
			p.snapshot = snapshot
		}
		p.counted = true
		c.recorder.RecordRows(ctx, len(res.Valid), len(res.Errors))
		if res.Dropped > 0 {
			logger.Warnf("%s: %d rows failed unexpectedly and were recorded as processing errors.", msg, res.Dropped)
		}
		logger.Debugf("%s: %d valid, %d errors.", msg, len(res.Valid), len(res.Errors))
		if p.snapshot != nil {
			c.notifier.NotifyProgress(ctx, p.snapshot)
		}
	}

	finalized, job, err := c.jobs.TryFinalize(ctx, msg.JobID)
	if finalized {
		if err != nil {
			logger.Warnf("%s: job completed, finalization reported: %v", msg, err)
		}
		if job == nil {
			job = completedSnapshot(msg.JobID, p.snapshot)
		}
		c.notifier.NotifyCompleted(ctx, msg.Contact, job)
		return nil
	}
	return err
}

// completedSnapshot stands in for the finalized job when it could not be re-read.
func completedSnapshot(jobID string, last *model.Job) *model.Job {
	now := time.Now().UTC()
	if last == nil {
		return &model.Job{ID: jobID, Status: model.JobStatusCompleted, CompletedAt: &now, UpdatedAt: now}
	}
	return last.CompletedCopy(now)
}
