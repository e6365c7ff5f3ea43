// Package inmemory provides map-backed repositories with the same semantics as the
// SQL ones. They back the tests and the single-process "local" mode.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// InMemoryJobRepository holds jobs in a map guarded by one mutex, which makes every
// operation trivially atomic.
type InMemoryJobRepository struct {
	jobs map[string]*model.Job
	mu   sync.RWMutex
	now  func() time.Time
}

// NewInMemoryJobRepository creates an empty repository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobs: make(map[string]*model.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps and stall detection.
func (r *InMemoryJobRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *InMemoryJobRepository) Create(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return exception.NewConfigurationError("InMemoryJobRepository.Create", fmt.Sprintf("job %s already exists", job.ID), exception.ErrAlreadySet)
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

// get must be called with the lock held.
func (r *InMemoryJobRepository) get(op, jobID string) (*model.Job, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, exception.NewConfigurationError(op, fmt.Sprintf("job not found: %s", jobID), exception.ErrJobNotFound)
	}
	return job, nil
}

func (r *InMemoryJobRepository) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, err := r.get("InMemoryJobRepository.FindByID", jobID)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

func (r *InMemoryJobRepository) filter(keep func(*model.Job) bool, limit int) []*model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Job, 0)
	for _, j := range r.jobs {
		if keep(j) {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *InMemoryJobRepository) FindByEmail(ctx context.Context, email string) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool { return j.RequesterEmail == email }, 0), nil
}

func (r *InMemoryJobRepository) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.filter(func(j *model.Job) bool { return j.Status == status }, 0), nil
}

func (r *InMemoryJobRepository) FindRecent(ctx context.Context, limit int) ([]*model.Job, error) {
	return r.filter(func(*model.Job) bool { return true }, limit), nil
}

func (r *InMemoryJobRepository) FindStalled(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	cutoff := r.now().Add(-olderThan)
	return r.filter(func(j *model.Job) bool {
		return j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff)
	}, 0), nil
}

func (r *InMemoryJobRepository) Stats(ctx context.Context) (map[model.JobStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make(map[model.JobStatus]int64, len(model.AllJobStatuses))
	for _, s := range model.AllJobStatuses {
		stats[s] = 0
	}
	for _, j := range r.jobs {
		stats[j.Status]++
	}
	return stats, nil
}

func (r *InMemoryJobRepository) touch(job *model.Job) {
	job.UpdatedAt = r.now()
	job.Version++
}

func (r *InMemoryJobRepository) SetTotal(ctx context.Context, jobID string, total int) error {
	const op = "InMemoryJobRepository.SetTotal"
	if total <= 0 {
		return exception.NewConfigurationError(op, fmt.Sprintf("total must be positive, got %d", total), nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(op, jobID)
	if err != nil {
		return err
	}
	switch {
	case job.Total == total:
		return nil
	case job.Total != 0:
		return exception.NewConfigurationError(op,
			fmt.Sprintf("total of job %s already set to %d, refusing %d", jobID, job.Total, total), exception.ErrAlreadySet)
	case job.Status.IsTerminal():
		return exception.NewConfigurationError(op, fmt.Sprintf("job %s is already %s", jobID, job.Status), nil)
	}
	job.Total = total
	if job.Status == model.JobStatusValidating {
		job.Status = model.JobStatusProcessing
	}
	if job.StartedProcessingAt == nil {
		now := r.now()
		job.StartedProcessingAt = &now
	}
	r.touch(job)
	return nil
}

func (r *InMemoryJobRepository) IncrementCounters(ctx context.Context, jobID string, processedDelta, successDelta, errorDelta int) (*model.Job, error) {
	const op = "InMemoryJobRepository.IncrementCounters"
	if processedDelta < 0 || successDelta < 0 || errorDelta < 0 || processedDelta != successDelta+errorDelta {
		return nil, exception.NewConfigurationError(op,
			fmt.Sprintf("invalid counter deltas processed=%d success=%d errors=%d", processedDelta, successDelta, errorDelta), nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(op, jobID)
	if err != nil {
		return nil, err
	}
	if processedDelta == 0 {
		return job.Clone(), nil
	}
	if job.Total > 0 && job.Processed+processedDelta > job.Total {
		logger.Warnf("%s: job %s would exceed its total (%d+%d > %d); treating as a duplicate delivery",
			op, jobID, job.Processed, processedDelta, job.Total)
		return job.Clone(), nil
	}
	job.Processed += processedDelta
	job.Success += successDelta
	job.Errors += errorDelta
	r.touch(job)
	return job.Clone(), nil
}

func (r *InMemoryJobRepository) TryFinalize(ctx context.Context, jobID string) (bool, *model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || !job.Status.IsFinalizable() || job.Total <= 0 || job.Processed < job.Total {
		return false, nil, nil
	}
	now := r.now()
	job.Status = model.JobStatusCompleted
	job.CompletedAt = &now
	r.touch(job)
	return true, job.Clone(), nil
}

func (r *InMemoryJobRepository) MarkError(ctx context.Context, jobID, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get("InMemoryJobRepository.MarkError", jobID)
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, nil
	}
	now := r.now()
	job.Status = model.JobStatusError
	job.ErrorMessage = message
	job.CompletedAt = &now
	r.touch(job)
	return true, nil
}

func (r *InMemoryJobRepository) SetStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	const op = "InMemoryJobRepository.SetStatus"
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.get(op, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == status {
		return job.Clone(), nil
	}
	if !job.Status.CanTransitionTo(status) {
		return nil, exception.NewConfigurationError(op,
			fmt.Sprintf("invalid transition of job %s: %s -> %s", jobID, job.Status, status), exception.ErrInvalidTransition)
	}
	now := r.now()
	job.Status = status
	if status == model.JobStatusProcessing && job.StartedProcessingAt == nil {
		job.StartedProcessingAt = &now
	}
	if status.IsTerminal() {
		job.CompletedAt = &now
	}
	r.touch(job)
	return job.Clone(), nil
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)
