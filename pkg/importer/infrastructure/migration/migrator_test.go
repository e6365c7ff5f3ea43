package migration_test

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/migration"
	sqlRepo "github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/sql"
)

func openSQLite(t *testing.T) (*gorm.DB, *gormadapter.GormDBAdapter) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.db")
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "sqlite", Database: path}, "importdb")
	require.NoError(t, err)
	return gormDB, conn
}

func TestMigrator_UpCreatesSchema(t *testing.T) {
	gormDB, conn := openSQLite(t)
	ctx := context.Background()
	m := migration.NewMigrator(conn)

	require.NoError(t, m.Up(ctx))

	for _, table := range []string{"import_jobs", "import_errors", "salaries"} {
		assert.True(t, gormDB.Migrator().HasTable(table), table)
	}
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, m.Up(ctx))
}

func TestMigrator_SchemaBacksRepositories(t *testing.T) {
	_, conn := openSQLite(t)
	ctx := context.Background()
	require.NoError(t, migration.NewMigrator(conn).Up(ctx))

	resolver := database.NewStaticResolver(conn)
	jobs := sqlRepo.NewSQLJobRepository(resolver, "importdb", 0)
	records := sqlRepo.NewSQLRecordRepository(resolver, "importdb")

	job := model.NewJob("", "nomina.xlsx", "ops@example.com", "uploads/nomina.xlsx", 1024)
	require.NoError(t, jobs.Create(ctx, job))
	require.NoError(t, jobs.SetTotal(ctx, job.ID, 2))

	rec := model.SalaryRecord{
		EmployeeNumber: "E001",
		FullName:       "Ana Torres",
		Position:       "Analyst",
		BaseSalary:     150000,
		NetSalary:      150000,
		PayPeriod:      "2024-01",
		PayDate:        time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	_, err := records.UpsertAll(ctx, []model.SalaryRecord{rec})
	require.NoError(t, err)
	rec.NetSalary = 160000
	_, err = records.UpsertAll(ctx, []model.SalaryRecord{rec})
	require.NoError(t, err)

	count, err := records.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := records.FindByKey(ctx, "E001", "2024-01")
	require.NoError(t, err)
	assert.Equal(t, model.Money(160000), stored.NetSalary)
}

func TestMigrator_DownDropsSchema(t *testing.T) {
	gormDB, conn := openSQLite(t)
	ctx := context.Background()
	m := migration.NewMigrator(conn)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Down(ctx))

	assert.False(t, gormDB.Migrator().HasTable("salaries"))
	assert.False(t, gormDB.Migrator().HasTable("import_jobs"))
	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_RejectsUnknownDialect(t *testing.T) {
	_, conn := openSQLite(t)
	odd, err := gormadapter.NewGormDBAdapter(conn.GetGormDB(), dbconfig.DatabaseConfig{Type: "oracle"}, "legacy")
	require.NoError(t, err)

	err = migration.NewMigrator(odd).Up(context.Background())
	assert.Error(t, err)
}

func TestFS_HasOneDirectoryPerDialect(t *testing.T) {
	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		ups, err := fs.Glob(migration.FS(), "sql/"+dialect+"/*.up.sql")
		require.NoError(t, err)
		downs, err := fs.Glob(migration.FS(), "sql/"+dialect+"/*.down.sql")
		require.NoError(t, err)
		assert.Len(t, ups, 3, dialect)
		assert.Len(t, downs, 3, dialect)
	}
}
