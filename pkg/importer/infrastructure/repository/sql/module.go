// Package sql implements the repositories on a relational database through the
// database adapter. The import_jobs row is the source of truth for job progress.
package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
)

// DefaultDatabaseRef is used when Infrastructure.DatabaseRef is not configured.
const DefaultDatabaseRef = "importdb"

// RepositoryParams defines the dependencies of the SQL repositories.
type RepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

func databaseRef(cfg *config.Config) string {
	if cfg == nil || cfg.Importer.Infrastructure.DatabaseRef == "" {
		return DefaultDatabaseRef
	}
	return cfg.Importer.Infrastructure.DatabaseRef
}

// NewJobRepository is the Fx provider of repository.JobRepository.
func NewJobRepository(p RepositoryParams) repository.JobRepository {
	attempts := 0
	if p.Cfg != nil {
		attempts = p.Cfg.Importer.Import.CounterMaxAttempts
	}
	return NewSQLJobRepository(p.DBResolver, databaseRef(p.Cfg), attempts)
}

// NewRecordRepository is the Fx provider of repository.RecordRepository.
func NewRecordRepository(p RepositoryParams) repository.RecordRepository {
	return NewSQLRecordRepository(p.DBResolver, databaseRef(p.Cfg))
}

// NewRowErrorRepository is the Fx provider of repository.RowErrorRepository.
func NewRowErrorRepository(p RepositoryParams) repository.RowErrorRepository {
	return NewSQLRowErrorRepository(p.DBResolver, databaseRef(p.Cfg))
}

// Module provides the SQL-backed repositories.
var Module = fx.Options(
	fx.Provide(
		NewJobRepository,
		NewRecordRepository,
		NewRowErrorRepository,
	),
)
