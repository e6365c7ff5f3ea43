package storage

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
)

// DefaultStorageRef is used when Infrastructure.StorageRef is not configured.
const DefaultStorageRef = "uploads"

// NewConfiguredFileStore is the Fx provider of the upload FileStore.
func NewConfiguredFileStore(resolver StorageConnectionResolver, cfg *config.Config) *FileStore {
	ref := cfg.Importer.Infrastructure.StorageRef
	if ref == "" {
		ref = DefaultStorageRef
	}
	return NewFileStore(resolver, ref)
}

// Module provides the storage resolver and the FileStore. Providers come from the
// local and gcs packages.
var Module = fx.Options(
	fx.Provide(
		NewResolver,
		func(r *Resolver) StorageConnectionResolver { return r },
		NewConfiguredFileStore,
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	}),
)
