package inmemory

import (
	"context"
	"sync"
	"time"

	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
)

// InMemoryRecordRepository keys salary records by natural key.
type InMemoryRecordRepository struct {
	records map[string]model.SalaryRecord
	mu      sync.RWMutex
}

func NewInMemoryRecordRepository() *InMemoryRecordRepository {
	return &InMemoryRecordRepository{records: make(map[string]model.SalaryRecord)}
}

func (r *InMemoryRecordRepository) UpsertAll(ctx context.Context, records []model.SalaryRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, rec := range records {
		key := rec.NaturalKey()
		if existing, ok := r.records[key]; ok {
			rec.CreatedAt = existing.CreatedAt
		} else if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		r.records[key] = rec
	}
	return len(records), nil
}

func (r *InMemoryRecordRepository) FindByKey(ctx context.Context, employeeNumber, payPeriod string) (*model.SalaryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[model.SalaryRecord{EmployeeNumber: employeeNumber, PayPeriod: payPeriod}.NaturalKey()]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *InMemoryRecordRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.records)), nil
}

var _ repository.RecordRepository = (*InMemoryRecordRepository)(nil)
