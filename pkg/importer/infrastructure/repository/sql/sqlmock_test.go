package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	sqlRepo "github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/sql"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

var jobColumns = []string{
	"id", "filename", "requester_email", "status", "total_rows", "processed_rows", "success_rows", "error_rows",
	"error_message", "file_size_bytes", "file_ref", "created_at", "updated_at", "started_processing_at", "completed_at", "version",
}

func jobRow(version, processed int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(jobColumns).AddRow(
		"job-1", "nomina.xlsx", "ops@example.com", string(model.JobStatusProcessing), 100, processed, processed, 0,
		"", 10, "uploads/nomina.xlsx", now, now, now, nil, version,
	)
}

func setupGormMock(t *testing.T, maxAttempts int) (sqlmock.Sqlmock, *sqlRepo.SQLJobRepository) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gorm_logger.Default.LogMode(gorm_logger.Silent)})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "mysql"}, "importdb")
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = sqlDB.Close()
	})
	return mock, sqlRepo.NewSQLJobRepository(database.NewStaticResolver(conn), "importdb", maxAttempts)
}

func TestSQLJobRepository_IncrementCountersRetriesStaleVersion(t *testing.T) {
	mock, repo := setupGormMock(t, 3)

	mock.ExpectQuery("SELECT \\* FROM `import_jobs` WHERE id = \\?").WillReturnRows(jobRow(3, 10))
	mock.ExpectExec("UPDATE `import_jobs` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `import_jobs` WHERE id = \\?").WillReturnRows(jobRow(4, 20))
	mock.ExpectExec("UPDATE `import_jobs` SET").WillReturnResult(sqlmock.NewResult(0, 1))

	snap, err := repo.IncrementCounters(context.Background(), "job-1", 10, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, snap.Processed)
	assert.Equal(t, 5, snap.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_IncrementCountersExhaustsBudget(t *testing.T) {
	mock, repo := setupGormMock(t, 2)

	for i := 0; i < 2; i++ {
		mock.ExpectQuery("SELECT \\* FROM `import_jobs` WHERE id = \\?").WillReturnRows(jobRow(3+i, 10))
		mock.ExpectExec("UPDATE `import_jobs` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	_, err := repo.IncrementCounters(context.Background(), "job-1", 1, 1, 0)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.True(t, exception.IsTemporary(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_TryFinalizeLosesRace(t *testing.T) {
	mock, repo := setupGormMock(t, 1)

	mock.ExpectExec("UPDATE `import_jobs` SET .* WHERE id = \\? AND status IN \\(\\?,\\?\\) AND total_rows > 0 AND processed_rows >= total_rows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, snap, err := repo.TryFinalize(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, won)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJobRepository_TryFinalizeWinnerIgnoresFailedReread(t *testing.T) {
	mock, repo := setupGormMock(t, 1)

	mock.ExpectExec("UPDATE `import_jobs` SET .* WHERE id = \\? AND status IN \\(\\?,\\?\\) AND total_rows > 0 AND processed_rows >= total_rows").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `import_jobs` WHERE id = \\?").WillReturnError(errors.New("connection reset by peer"))

	won, snap, err := repo.TryFinalize(context.Background(), "job-1")
	require.NoError(t, err)
	assert.True(t, won)
	assert.Nil(t, snap)
	assert.NoError(t, mock.ExpectationsWereMet())
}
