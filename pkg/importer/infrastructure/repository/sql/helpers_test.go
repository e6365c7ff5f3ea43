package sql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	sqlRepo "github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/sql"
)

type sqliteFixture struct {
	db      *gorm.DB
	jobs    *sqlRepo.SQLJobRepository
	records *sqlRepo.SQLRecordRepository
	errors  *sqlRepo.SQLRowErrorRepository
}

// newSQLiteFixture opens a private in-memory database with the schema migrated.
// A single pooled connection keeps every goroutine on the same database.
func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(sqlRepo.Entities()...))

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "importdb")
	require.NoError(t, err)
	resolver := database.NewStaticResolver(conn)

	return &sqliteFixture{
		db:      gormDB,
		jobs:    sqlRepo.NewSQLJobRepository(resolver, "importdb", 0),
		records: sqlRepo.NewSQLRecordRepository(resolver, "importdb"),
		errors:  sqlRepo.NewSQLRowErrorRepository(resolver, "importdb"),
	}
}

func (f *sqliteFixture) createJob(t *testing.T, total int) *model.Job {
	t.Helper()
	ctx := context.Background()
	job := model.NewJob("", "nomina.xlsx", "ops@example.com", "uploads/nomina.xlsx", 2048)
	require.NoError(t, f.jobs.Create(ctx, job))
	if total > 0 {
		require.NoError(t, f.jobs.SetTotal(ctx, job.ID, total))
	}
	return job
}
