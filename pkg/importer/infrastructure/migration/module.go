package migration

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/migration/drivers"
)

// NewConfiguredMigrator resolves the repository connection and builds its Migrator.
func NewConfiguredMigrator(resolver database.DBConnectionResolver, cfg *config.Config) (*Migrator, error) {
	conn, err := resolver.ResolveDBConnection(context.Background(), cfg.Importer.Infrastructure.DatabaseRef)
	if err != nil {
		return nil, err
	}
	return NewMigrator(conn), nil
}

// registerMigrateOnStart applies pending migrations before the other OnStart hooks that
// are registered after it.
func registerMigrateOnStart(lc fx.Lifecycle, m *Migrator, cfg *config.Config) {
	if !cfg.Importer.Infrastructure.MigrateOnStart {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Up(ctx)
		},
	})
}

// Module provides *Migrator and runs it on start when configured.
var Module = fx.Options(
	drivers.Module,
	fx.Provide(NewConfiguredMigrator),
	fx.Invoke(registerMigrateOnStart),
)
