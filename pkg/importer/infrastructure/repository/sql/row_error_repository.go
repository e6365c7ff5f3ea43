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

// SQLRowErrorRepository persists row-level failures.
type SQLRowErrorRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// NewSQLRowErrorRepository creates a row error repository on the named connection.
func NewSQLRowErrorRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRowErrorRepository {
	return &SQLRowErrorRepository{dbResolver: dbResolver, dbName: dbName}
}

func (r *SQLRowErrorRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewTransientError("SQLRowErrorRepository", fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn, nil
}

// SaveAll inserts the errors in one batch.
func (r *SQLRowErrorRepository) SaveAll(ctx context.Context, rowErrors []model.RowError) error {
	const op = "SQLRowErrorRepository.SaveAll"
	if len(rowErrors) == 0 {
		return nil
	}
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	entities := make([]RowErrorEntity, 0, len(rowErrors))
	for _, e := range rowErrors {
		entity := fromDomainRowError(e)
		if entity.CreatedAt.IsZero() {
			entity.CreatedAt = now
		}
		entities = append(entities, entity)
	}
	if _, err := conn.ExecuteUpdate(ctx, &entities, "CREATE", RowErrorEntity{}.TableName(), nil); err != nil {
		return exception.NewTransientError(op, fmt.Sprintf("failed to save %d row errors", len(entities)), err)
	}
	return nil
}

func (r *SQLRowErrorRepository) FindByJob(ctx context.Context, jobID string) ([]model.RowError, error) {
	const op = "SQLRowErrorRepository.FindByJob"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []RowErrorEntity
	if err := conn.QueryWhere(ctx, &entities, "row_num ASC, id ASC", 0, database.Cond("job_id = ?", jobID)); err != nil {
		return nil, exception.NewTransientError(op, fmt.Sprintf("failed to query row errors of job %s", jobID), err)
	}
	out := make([]model.RowError, 0, len(entities))
	for _, e := range entities {
		out = append(out, toDomainRowError(e))
	}
	return out, nil
}

func (r *SQLRowErrorRepository) CountByJob(ctx context.Context, jobID string) (int64, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.Count(ctx, &RowErrorEntity{}, map[string]interface{}{"job_id": jobID})
	if err != nil {
		return 0, exception.NewTransientError("SQLRowErrorRepository.CountByJob", "failed to count row errors", err)
	}
	return n, nil
}

// CountByType returns the number of errors of the job per error type.
func (r *SQLRowErrorRepository) CountByType(ctx context.Context, jobID string) (map[model.RowErrorType]int64, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := conn.CountGroupBy(ctx, &RowErrorEntity{}, "error_type", map[string]interface{}{"job_id": jobID})
	if err != nil {
		return nil, exception.NewTransientError("SQLRowErrorRepository.CountByType", "failed to group row errors", err)
	}
	out := make(map[model.RowErrorType]int64, len(counts))
	for k, v := range counts {
		out[model.RowErrorType(k)] = v
	}
	return out, nil
}

func (r *SQLRowErrorRepository) DeleteByJob(ctx context.Context, jobID string) (int64, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return 0, err
	}
	n, err := conn.ExecuteUpdate(ctx, &RowErrorEntity{}, "DELETE", RowErrorEntity{}.TableName(), map[string]interface{}{"job_id": jobID})
	if err != nil {
		return 0, exception.NewTransientError("SQLRowErrorRepository.DeleteByJob", "failed to delete row errors", err)
	}
	return n, nil
}

var _ repository.RowErrorRepository = (*SQLRowErrorRepository)(nil)
