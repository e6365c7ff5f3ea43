package postgres

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
)

// Module registers the postgres DBProvider in the db_providers group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.As(new(database.DBProvider)),
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
