package inmemory

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
)

// Module provides the in-memory repositories under the repository interfaces.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewInMemoryJobRepository, fx.As(new(repository.JobRepository))),
		fx.Annotate(NewInMemoryRecordRepository, fx.As(new(repository.RecordRepository))),
		fx.Annotate(NewInMemoryRowErrorRepository, fx.As(new(repository.RowErrorRepository))),
	),
)
