package sql

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// DefaultCounterMaxAttempts bounds the check-and-set loop of counter updates.
const DefaultCounterMaxAttempts = 50

const maxCASPause = 20 * time.Millisecond

var (
	finalizableStatuses = []string{string(model.JobStatusValidating), string(model.JobStatusProcessing)}
	terminalStatuses    = []string{string(model.JobStatusCompleted), string(model.JobStatusError), string(model.JobStatusCancelled)}
)

// SQLJobRepository implements repository.JobRepository. Counters use a version
// check-and-set loop; status changes are single conditional UPDATEs.
type SQLJobRepository struct {
	dbResolver  database.DBConnectionResolver
	dbName      string
	maxAttempts int
	now         func() time.Time
}

// NewSQLJobRepository creates a job repository on the named connection.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string, maxAttempts int) *SQLJobRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCounterMaxAttempts
	}
	return &SQLJobRepository{
		dbResolver:  dbResolver,
		dbName:      dbName,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewTransientError("SQLJobRepository", fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn, nil
}

func (r *SQLJobRepository) Create(ctx context.Context, job *model.Job) error {
	const op = "SQLJobRepository.Create"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainJob(job)
	if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		return exception.NewTransientError(op, fmt.Sprintf("failed to create job (ID: %s)", job.ID), err)
	}
	return nil
}

func (r *SQLJobRepository) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	const op = "SQLJobRepository.FindByID"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobEntity
	if err := conn.QueryWhere(ctx, &entities, "", 1, database.Cond("id = ?", jobID)); err != nil {
		return nil, exception.NewTransientError(op, fmt.Sprintf("failed to find job (ID: %s)", jobID), err)
	}
	if len(entities) == 0 {
		return nil, exception.NewConfigurationError(op, fmt.Sprintf("job not found: %s", jobID), exception.ErrJobNotFound)
	}
	return toDomainJob(&entities[0]), nil
}

func (r *SQLJobRepository) findWhere(ctx context.Context, op, orderBy string, limit int, conds ...database.Where) ([]*model.Job, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	var entities []JobEntity
	if err := conn.QueryWhere(ctx, &entities, orderBy, limit, conds...); err != nil {
		return nil, exception.NewTransientError(op, "failed to query jobs", err)
	}
	return toDomainJobs(entities), nil
}

func (r *SQLJobRepository) FindByEmail(ctx context.Context, email string) ([]*model.Job, error) {
	return r.findWhere(ctx, "SQLJobRepository.FindByEmail", "created_at DESC", 0, database.Cond("requester_email = ?", email))
}

func (r *SQLJobRepository) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	return r.findWhere(ctx, "SQLJobRepository.FindByStatus", "created_at DESC", 0, database.Cond("status = ?", string(status)))
}

func (r *SQLJobRepository) FindRecent(ctx context.Context, limit int) ([]*model.Job, error) {
	return r.findWhere(ctx, "SQLJobRepository.FindRecent", "created_at DESC", limit)
}

func (r *SQLJobRepository) FindStalled(ctx context.Context, olderThan time.Duration) ([]*model.Job, error) {
	cutoff := r.now().Add(-olderThan)
	return r.findWhere(ctx, "SQLJobRepository.FindStalled", "updated_at ASC", 0,
		database.Cond("status = ?", string(model.JobStatusProcessing)),
		database.Cond("updated_at < ?", cutoff))
}

func (r *SQLJobRepository) Stats(ctx context.Context) (map[model.JobStatus]int64, error) {
	const op = "SQLJobRepository.Stats"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := conn.CountGroupBy(ctx, &JobEntity{}, "status", nil)
	if err != nil {
		return nil, exception.NewTransientError(op, "failed to count jobs by status", err)
	}
	stats := make(map[model.JobStatus]int64, len(model.AllJobStatuses))
	for _, s := range model.AllJobStatuses {
		stats[s] = counts[string(s)]
	}
	return stats, nil
}

// casMutation computes the column values to write for the observed job.
// Returning nil values means there is nothing to write.
type casMutation func(job *model.Job) (values map[string]interface{}, err error)

// compareAndSet applies mutate under a version check, re-reading and retrying when
// another writer got there first. It returns the snapshot it wrote.
func (r *SQLJobRepository) compareAndSet(ctx context.Context, op, jobID string, mutate casMutation) (*model.Job, error) {
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}
	table := JobEntity{}.TableName()

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		job, err := r.FindByID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		values, err := mutate(job)
		if err != nil {
			return nil, err
		}
		if values == nil {
			return job, nil
		}
		now := r.now()
		values["version"] = job.Version + 1
		values["updated_at"] = now

		rows, err := conn.UpdateWhere(ctx, table, values,
			database.Cond("id = ?", jobID),
			database.Cond("version = ?", job.Version))
		if err != nil {
			return nil, exception.NewTransientError(op, fmt.Sprintf("failed to update job (ID: %s)", jobID), err)
		}
		if rows == 1 {
			applyValues(job, values)
			return job, nil
		}

		logger.Debugf("%s: version %d of job %s is stale (attempt %d/%d)", op, job.Version, jobID, attempt, r.maxAttempts)
		if err := pause(ctx, attempt); err != nil {
			return nil, exception.NewTransientError(op, "interrupted while retrying version check", err)
		}
	}
	return nil, exception.NewOptimisticLockingFailure(op,
		fmt.Sprintf("job %s: version check failed %d times", jobID, r.maxAttempts), nil)
}

// pause sleeps a jittered, slowly growing interval between check-and-set attempts.
func pause(ctx context.Context, attempt int) error {
	ceiling := time.Duration(attempt) * time.Millisecond
	if ceiling > maxCASPause {
		ceiling = maxCASPause
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// applyValues mirrors written columns onto the in-memory snapshot.
func applyValues(job *model.Job, values map[string]interface{}) {
	for col, v := range values {
		switch col {
		case "processed_rows":
			job.Processed = v.(int)
		case "success_rows":
			job.Success = v.(int)
		case "error_rows":
			job.Errors = v.(int)
		case "total_rows":
			job.Total = v.(int)
		case "status":
			job.Status = model.JobStatus(v.(string))
		case "version":
			job.Version = v.(int)
		case "updated_at":
			job.UpdatedAt = v.(time.Time)
		case "started_processing_at":
			t := v.(time.Time)
			job.StartedProcessingAt = &t
		case "completed_at":
			t := v.(time.Time)
			job.CompletedAt = &t
		}
	}
}

// SetTotal sets the row total once and moves VALIDATING to PROCESSING.
func (r *SQLJobRepository) SetTotal(ctx context.Context, jobID string, total int) error {
	const op = "SQLJobRepository.SetTotal"
	if total <= 0 {
		return exception.NewConfigurationError(op, fmt.Sprintf("total must be positive, got %d", total), nil)
	}
	_, err := r.compareAndSet(ctx, op, jobID, func(job *model.Job) (map[string]interface{}, error) {
		return totalMutation(op, job, total, r.now())
	})
	return err
}

func totalMutation(op string, job *model.Job, total int, now time.Time) (map[string]interface{}, error) {
	if job.Total == total {
		return nil, nil
	}
	if job.Total != 0 {
		return nil, exception.NewConfigurationError(op,
			fmt.Sprintf("total of job %s already set to %d, refusing %d", job.ID, job.Total, total), exception.ErrAlreadySet)
	}
	if job.Status.IsTerminal() {
		return nil, exception.NewConfigurationError(op, fmt.Sprintf("job %s is already %s", job.ID, job.Status), nil)
	}
	values := map[string]interface{}{"total_rows": total}
	if job.Status == model.JobStatusValidating {
		values["status"] = string(model.JobStatusProcessing)
	}
	if job.StartedProcessingAt == nil {
		values["started_processing_at"] = now
	}
	return values, nil
}

// IncrementCounters adds the deltas under a version check. Status is never written.
func (r *SQLJobRepository) IncrementCounters(ctx context.Context, jobID string, processedDelta, successDelta, errorDelta int) (*model.Job, error) {
	const op = "SQLJobRepository.IncrementCounters"
	if err := checkDeltas(op, processedDelta, successDelta, errorDelta); err != nil {
		return nil, err
	}
	return r.compareAndSet(ctx, op, jobID, func(job *model.Job) (map[string]interface{}, error) {
		return counterMutation(op, job, processedDelta, successDelta, errorDelta), nil
	})
}

func checkDeltas(op string, processedDelta, successDelta, errorDelta int) error {
	if processedDelta < 0 || successDelta < 0 || errorDelta < 0 || processedDelta != successDelta+errorDelta {
		return exception.NewConfigurationError(op,
			fmt.Sprintf("invalid counter deltas processed=%d success=%d errors=%d", processedDelta, successDelta, errorDelta), nil)
	}
	return nil
}

func counterMutation(op string, job *model.Job, processedDelta, successDelta, errorDelta int) map[string]interface{} {
	if processedDelta == 0 {
		return nil
	}
	if job.Total > 0 && job.Processed+processedDelta > job.Total {
		logger.Warnf("%s: job %s would exceed its total (%d+%d > %d); treating as a duplicate delivery",
			op, job.ID, job.Processed, processedDelta, job.Total)
		return nil
	}
	return map[string]interface{}{
		"processed_rows": job.Processed + processedDelta,
		"success_rows":   job.Success + successDelta,
		"error_rows":     job.Errors + errorDelta,
	}
}

// TryFinalize is a single conditional UPDATE; the row count decides the winner.
func (r *SQLJobRepository) TryFinalize(ctx context.Context, jobID string) (bool, *model.Job, error) {
	const op = "SQLJobRepository.TryFinalize"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return false, nil, err
	}
	now := r.now()
	rows, err := conn.UpdateWhere(ctx, JobEntity{}.TableName(),
		map[string]interface{}{
			"status":       string(model.JobStatusCompleted),
			"completed_at": now,
			"updated_at":   now,
			"version":      database.Expression("version + 1"),
		},
		database.Cond("id = ?", jobID),
		database.Cond("status IN ?", finalizableStatuses),
		database.Cond("total_rows > 0"),
		database.Cond("processed_rows >= total_rows"))
	if err != nil {
		return false, nil, exception.NewTransientError(op, fmt.Sprintf("failed to finalize job (ID: %s)", jobID), err)
	}
	if rows == 0 {
		return false, nil, nil
	}
	job, err := r.FindByID(ctx, jobID)
	if err != nil {
		logger.Warnf("%s: job %s completed but could not be re-read: %v", op, jobID, err)
		return true, nil, nil
	}
	return true, job, nil
}

// MarkError moves a non-terminal job to ERROR.
func (r *SQLJobRepository) MarkError(ctx context.Context, jobID, message string) (bool, error) {
	const op = "SQLJobRepository.MarkError"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return false, err
	}
	now := r.now()
	rows, err := conn.UpdateWhere(ctx, JobEntity{}.TableName(),
		map[string]interface{}{
			"status":        string(model.JobStatusError),
			"error_message": message,
			"completed_at":  now,
			"updated_at":    now,
			"version":       database.Expression("version + 1"),
		},
		database.Cond("id = ?", jobID),
		database.Cond("status NOT IN ?", terminalStatuses))
	if err != nil {
		return false, exception.NewTransientError(op, fmt.Sprintf("failed to mark job %s as ERROR", jobID), err)
	}
	if rows == 1 {
		return true, nil
	}
	// distinguish "already terminal" from "missing"
	if _, err := r.FindByID(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

// SetStatus applies an external transition guarded by the state machine.
func (r *SQLJobRepository) SetStatus(ctx context.Context, jobID string, status model.JobStatus) (*model.Job, error) {
	const op = "SQLJobRepository.SetStatus"
	return r.compareAndSet(ctx, op, jobID, func(job *model.Job) (map[string]interface{}, error) {
		return statusMutation(op, job, status, r.now())
	})
}

func statusMutation(op string, job *model.Job, status model.JobStatus, now time.Time) (map[string]interface{}, error) {
	if job.Status == status {
		return nil, nil
	}
	if !job.Status.CanTransitionTo(status) {
		return nil, exception.NewConfigurationError(op,
			fmt.Sprintf("invalid transition of job %s: %s -> %s", job.ID, job.Status, status), exception.ErrInvalidTransition)
	}
	values := map[string]interface{}{"status": string(status)}
	if status == model.JobStatusProcessing && job.StartedProcessingAt == nil {
		values["started_processing_at"] = now
	}
	if status.IsTerminal() {
		values["completed_at"] = now
	}
	return values, nil
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)
