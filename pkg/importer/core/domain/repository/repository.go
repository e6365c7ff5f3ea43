// Package repository declares the persistence contracts of the import pipeline.
package repository

import (
	"context"
	"errors"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// JobRepository is the only writer of job status and counters. Every mutation is a
// conditional update so concurrent consumers never lose an increment or finalize twice.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *model.Job) error

	// FindByID returns exception.ErrJobNotFound (wrapped) when no job exists.
	FindByID(ctx context.Context, jobID string) (*model.Job, error)
	FindByEmail(ctx context.Context, email string) ([]*model.Job, error)
	FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	// FindRecent returns the latest jobs by creation time.
	FindRecent(ctx context.Context, limit int) ([]*model.Job, error)
	// FindStalled returns PROCESSING jobs not updated within olderThan.
	FindStalled(ctx context.Context, olderThan time.Duration) ([]*model.Job, error)
	// Stats counts jobs per status.
	Stats(ctx context.Context) (map[model.JobStatus]int64, error)

	// SetTotal sets the row total once and moves VALIDATING to PROCESSING.
	// Repeating the same value is a no-op; a different value returns exception.ErrAlreadySet.
	SetTotal(ctx context.Context, jobID string, total int) error

	// IncrementCounters adds the deltas atomically and returns the post-update snapshot.
	// It never changes the status.
	IncrementCounters(ctx context.Context, jobID string, processedDelta, successDelta, errorDelta int) (*model.Job, error)

	// TryFinalize moves a VALIDATING or PROCESSING job whose processed count reached
	// its total to COMPLETED. Exactly one concurrent caller observes true. A winner
	// never gets an error; its snapshot is nil when the job could not be re-read.
	TryFinalize(ctx context.Context, jobID string) (bool, *model.Job, error)

	// MarkError moves a non-terminal job to ERROR. It reports false if the job
	// was already terminal.
	MarkError(ctx context.Context, jobID, message string) (bool, error)

	// SetStatus applies an external transition (pause, resume, cancel) guarded by the state machine.
	SetStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error)
}

// RecordRepository writes salary records idempotently by (employee number, pay period).
type RecordRepository interface {
	// UpsertAll inserts or updates all records in one batch and returns the number written.
	UpsertAll(ctx context.Context, records []model.SalaryRecord) (int, error)
	FindByKey(ctx context.Context, employeeNumber, payPeriod string) (*model.SalaryRecord, error)
	Count(ctx context.Context) (int64, error)
}

// RowErrorRepository is the append-only store of row failures.
type RowErrorRepository interface {
	SaveAll(ctx context.Context, rowErrors []model.RowError) error
	FindByJob(ctx context.Context, jobID string) ([]model.RowError, error)
	CountByJob(ctx context.Context, jobID string) (int64, error)
	CountByType(ctx context.Context, jobID string) (map[model.RowErrorType]int64, error)
	// DeleteByJob removes the errors of a job and returns how many were deleted.
	DeleteByJob(ctx context.Context, jobID string) (int64, error)
}

// ErrRecordNotFound is returned by FindByKey when no record matches.
var ErrRecordNotFound = errors.New("salary record not found")

func init() {
	exception.RegisterErrorType("ErrRecordNotFound", ErrRecordNotFound)
}
