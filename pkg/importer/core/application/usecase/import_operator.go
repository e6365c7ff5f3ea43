package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const operatorModule = "import_operator"

// StalledMessage is the job error written by Sweep.
func StalledMessage(olderThan time.Duration) string {
	return fmt.Sprintf("Processing stalled: no progress for %s", olderThan)
}

// DefaultImportOperator implements ImportOperator.
type DefaultImportOperator struct {
	jobs     repository.JobRepository
	errors   repository.RowErrorRepository
	notifier ports.Notifier
}

var _ ImportOperator = (*DefaultImportOperator)(nil)

// NewDefaultImportOperator creates the operator.
func NewDefaultImportOperator(jobs repository.JobRepository, errorRepo repository.RowErrorRepository, notifier ports.Notifier) *DefaultImportOperator {
	return &DefaultImportOperator{jobs: jobs, errors: errorRepo, notifier: notifier}
}

func (o *DefaultImportOperator) transition(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	job, err := o.jobs.SetStatus(ctx, jobID, status)
	if err != nil {
		logger.Warnf("Job %s: transition to %s refused: %v", jobID, status, err)
		return nil, err
	}
	logger.Infof("Job %s is now %s.", jobID, job.Status)
	o.notifier.NotifyProgress(ctx, job)
	return job, nil
}

func (o *DefaultImportOperator) Pause(ctx context.Context, jobID string) (*model.Job, error) {
	return o.transition(ctx, jobID, model.JobStatusPaused)
}

func (o *DefaultImportOperator) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	return o.transition(ctx, jobID, model.JobStatusCancelled)
}

// Resume implements ImportOperator. Chunks consumed while the job was paused are counted
// but never finalize it, so the finalization is retried here.
func (o *DefaultImportOperator) Resume(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.transition(ctx, jobID, model.JobStatusProcessing)
	if err != nil {
		return nil, err
	}
	finalized, final, err := o.jobs.TryFinalize(ctx, jobID)
	if !finalized {
		if err != nil {
			logger.Warnf("Job %s: finalization after resume failed: %v", jobID, err)
		}
		return job, nil
	}
	if final == nil {
		final = job.CompletedCopy(time.Now().UTC())
	}
	o.notifier.NotifyCompleted(ctx, job.RequesterEmail, final)
	return final, nil
}

func (o *DefaultImportOperator) DeleteErrors(ctx context.Context, jobID string) (int64, error) {
	n, err := o.errors.DeleteByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	logger.Infof("Deleted %d row errors of job %s.", n, jobID)
	return n, nil
}

// Sweep implements ImportOperator. A job that reaches a terminal status between the
// query and MarkError is left alone.
func (o *DefaultImportOperator) Sweep(ctx context.Context, olderThan time.Duration) ([]string, error) {
	if olderThan <= 0 {
		return nil, exception.NewValidationError(operatorModule, "olderThan must be positive", nil)
	}
	stalled, err := o.jobs.FindStalled(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	message := StalledMessage(olderThan)
	var merr *multierror.Error
	var marked []string
	for _, job := range stalled {
		ok, err := o.jobs.MarkError(ctx, job.ID, message)
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		if !ok {
			continue
		}
		marked = append(marked, job.ID)
		logger.Warnf("Job %s marked as ERROR: %s (last update %s).", job.ID, message, job.UpdatedAt.Format(time.RFC3339))
		o.notifier.NotifyFailed(ctx, job.RequesterEmail, job.ID, message)
	}
	return marked, merr.ErrorOrNil()
}
