package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
)

// Module provides the connection resolver. Concrete providers come from the driver packages.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Invoke(registerCloseHook),
)

func registerCloseHook(lc fx.Lifecycle, r *GormDBConnectionResolver) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.CloseAll()
		},
	})
}
