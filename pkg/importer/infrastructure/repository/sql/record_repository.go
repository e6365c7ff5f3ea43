package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

var (
	salaryConflictColumns = []string{"employee_number", "pay_period"}
	salaryUpdateColumns   = []string{
		"full_name", "position", "base_salary", "bonuses", "deductions", "net_salary", "pay_date", "updated_at",
	}
)

// SQLRecordRepository upserts salary records by natural key.
type SQLRecordRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
	now        func() time.Time
}

// NewSQLRecordRepository creates a record repository on the named connection.
func NewSQLRecordRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRecordRepository {
	return &SQLRecordRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *SQLRecordRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewTransientError("SQLRecordRepository", fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn, nil
}

// UpsertAll writes the batch in one transaction. Repeated natural keys inside the batch
// collapse to their last occurrence. The returned count is len(records).
func (r *SQLRecordRepository) UpsertAll(ctx context.Context, records []model.SalaryRecord) (int, error) {
	const op = "SQLRecordRepository.UpsertAll"
	if len(records) == 0 {
		return 0, nil
	}
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now()
	entities := make([]SalaryEntity, 0, len(records))
	for _, rec := range DedupeByNaturalKey(records) {
		e := fromDomainSalary(rec)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		entities = append(entities, e)
	}

	if _, err := conn.ExecuteUpsert(ctx, &entities, SalaryEntity{}.TableName(), salaryConflictColumns, salaryUpdateColumns); err != nil {
		return 0, exception.NewTransientError(op, fmt.Sprintf("failed to upsert %d salary records", len(entities)), err)
	}
	return len(records), nil
}

// DedupeByNaturalKey keeps the last record per (employee number, pay period), preserving
// the position of the first occurrence.
func DedupeByNaturalKey(records []model.SalaryRecord) []model.SalaryRecord {
	index := make(map[string]int, len(records))
	out := make([]model.SalaryRecord, 0, len(records))
	for _, rec := range records {
		key := rec.NaturalKey()
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

func (r *SQLRecordRepository) FindByKey(ctx context.Context, employeeNumber, payPeriod string) (*model.SalaryRecord, error) {
	const op = "SQLRecordRepository.FindByKey"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []SalaryEntity
	if err := conn.QueryWhere(ctx, &entities, "", 1,
		database.Cond("employee_number = ?", employeeNumber),
		database.Cond("pay_period = ?", payPeriod)); err != nil {
		return nil, exception.NewTransientError(op, "failed to query salary record", err)
	}
	if len(entities) == 0 {
		return nil, repository.ErrRecordNotFound
	}
	rec := toDomainSalary(entities[0])
	return &rec, nil
}

func (r *SQLRecordRepository) Count(ctx context.Context) (int64, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Count(ctx, &SalaryEntity{}, nil)
	if err != nil {
		return 0, exception.NewTransientError("SQLRecordRepository.Count", "failed to count salary records", err)
	}
	return n, nil
}

var _ repository.RecordRepository = (*SQLRecordRepository)(nil)
