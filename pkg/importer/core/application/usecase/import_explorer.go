package usecase

import (
	"context"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// JobStats counts jobs per status.
type JobStats struct {
	Total    int64                     `json:"total"`
	ByStatus map[model.JobStatus]int64 `json:"byStatus"`
}

// SimpleImportExplorer implements ImportExplorer.
type SimpleImportExplorer struct {
	jobs   repository.JobRepository
	errors repository.RowErrorRepository
	cache  ports.ProgressCache
	now    func() time.Time
}

var _ ImportExplorer = (*SimpleImportExplorer)(nil)

// NewSimpleImportExplorer creates the explorer. cache may be nil.
func NewSimpleImportExplorer(jobs repository.JobRepository, errorRepo repository.RowErrorRepository, cache ports.ProgressCache) *SimpleImportExplorer {
	return &SimpleImportExplorer{
		jobs:   jobs,
		errors: errorRepo,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus implements ImportExplorer. A cache miss or cache failure falls back to the
// job store, whose snapshot is written back to the cache.
func (e *SimpleImportExplorer) GetStatus(ctx context.Context, jobID string) (*model.JobStatusView, error) {
	if job := e.cached(ctx, jobID); job != nil {
		view := model.NewJobStatusView(job, e.now())
		return &view, nil
	}

	job, err := e.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Put(ctx, job); err != nil {
			logger.Debugf("Could not warm cache for job %s: %v", jobID, err)
		}
	}
	view := model.NewJobStatusView(job, e.now())
	return &view, nil
}

func (e *SimpleImportExplorer) cached(ctx context.Context, jobID string) *model.Job {
	if e.cache == nil {
		return nil
	}
	job, ok, err := e.cache.Get(ctx, jobID)
	if err != nil {
		logger.Warnf("Progress cache read for job %s failed, using the job store: %v", jobID, err)
		return nil
	}
	if !ok || job.CreatedAt.IsZero() {
		// A bare failure marker carries no counters; the store has the full record.
		return nil
	}
	return job
}

// ListErrors returns the row errors of an existing job ordered by row number.
func (e *SimpleImportExplorer) ListErrors(ctx context.Context, jobID string) ([]model.RowError, error) {
	if _, err := e.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return e.errors.FindByJob(ctx, jobID)
}

func (e *SimpleImportExplorer) CountErrors(ctx context.Context, jobID string) (int64, error) {
	return e.errors.CountByJob(ctx, jobID)
}

func (e *SimpleImportExplorer) ErrorsByType(ctx context.Context, jobID string) (map[model.RowErrorType]int64, error) {
	return e.errors.CountByType(ctx, jobID)
}

func (e *SimpleImportExplorer) RecentJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.jobs.FindRecent(ctx, limit)
}

func (e *SimpleImportExplorer) JobsByEmail(ctx context.Context, email string) ([]*model.Job, error) {
	return e.jobs.FindByEmail(ctx, email)
}

// Stats implements ImportExplorer.
func (e *SimpleImportExplorer) Stats(ctx context.Context) (*JobStats, error) {
	byStatus, err := e.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats := &JobStats{ByStatus: make(map[model.JobStatus]int64, len(model.AllJobStatuses))}
	for _, s := range model.AllJobStatuses {
		stats.ByStatus[s] = byStatus[s]
		stats.Total += byStatus[s]
	}
	return stats, nil
}
