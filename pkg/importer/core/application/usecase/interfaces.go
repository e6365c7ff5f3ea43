// Package usecase holds the operations exposed to the HTTP API and the CLI: submitting an
// upload, querying jobs and their errors, and the external status transitions.
package usecase

import (
	"context"
	"io"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

// ImportLauncher accepts uploads and starts their asynchronous dispatch.
type ImportLauncher interface {
	// StartImport stores the file, checks its headers, creates the job in VALIDATING and
	// submits the dispatch. It returns before any row is read.
	StartImport(ctx context.Context, req UploadRequest) (*ImportResponse, error)
}

// ImportExplorer answers read-only queries about jobs and their row errors.
type ImportExplorer interface {
	// GetStatus reads the progress cache first and falls back to the job store.
	GetStatus(ctx context.Context, jobID string) (*model.JobStatusView, error)
	ListErrors(ctx context.Context, jobID string) ([]model.RowError, error)
	CountErrors(ctx context.Context, jobID string) (int64, error)
	ErrorsByType(ctx context.Context, jobID string) (map[model.RowErrorType]int64, error)
	RecentJobs(ctx context.Context, limit int) ([]*model.Job, error)
	JobsByEmail(ctx context.Context, email string) ([]*model.Job, error)
	Stats(ctx context.Context) (*JobStats, error)
}

// ImportOperator applies the transitions that only an operator can trigger.
type ImportOperator interface {
	Pause(ctx context.Context, jobID string) (*model.Job, error)
	// Resume moves a paused job back to PROCESSING and finalizes it when every row was
	// already processed.
	Resume(ctx context.Context, jobID string) (*model.Job, error)
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
	DeleteErrors(ctx context.Context, jobID string) (int64, error)
	// Sweep marks PROCESSING jobs without progress for olderThan as ERROR and returns the
	// ids it marked.
	Sweep(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// UploadStore keeps uploaded files where every worker can open them.
type UploadStore interface {
	Save(ctx context.Context, objectName string, data io.Reader) (string, error)
	Delete(ctx context.Context, fileRef string) error
}

// JobSubmitter hands a created job to the dispatch pool.
type JobSubmitter interface {
	SubmitJob(jobID, fileRef, contact string)
}
