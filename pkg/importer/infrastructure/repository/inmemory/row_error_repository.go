package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
)

// InMemoryRowErrorRepository stores row errors per job.
type InMemoryRowErrorRepository struct {
	byJob  map[string][]model.RowError
	nextID int64
	mu     sync.RWMutex
}

func NewInMemoryRowErrorRepository() *InMemoryRowErrorRepository {
	return &InMemoryRowErrorRepository{byJob: make(map[string][]model.RowError)}
}

func (r *InMemoryRowErrorRepository) SaveAll(ctx context.Context, rowErrors []model.RowError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range rowErrors {
		r.nextID++
		e.ID = r.nextID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		r.byJob[e.JobID] = append(r.byJob[e.JobID], e)
	}
	return nil
}

func (r *InMemoryRowErrorRepository) FindByJob(ctx context.Context, jobID string) ([]model.RowError, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]model.RowError(nil), r.byJob[jobID]...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].RowNumber < out[b].RowNumber })
	return out, nil
}

func (r *InMemoryRowErrorRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byJob[jobID])), nil
}

func (r *InMemoryRowErrorRepository) CountByType(ctx context.Context, jobID string) (map[model.RowErrorType]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.RowErrorType]int64)
	for _, e := range r.byJob[jobID] {
		out[e.Type]++
	}
	return out, nil
}

func (r *InMemoryRowErrorRepository) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.byJob[jobID]))
	delete(r.byJob, jobID)
	return n, nil
}

var _ repository.RowErrorRepository = (*InMemoryRowErrorRepository)(nil)
