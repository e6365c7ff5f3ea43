package gcs

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
)

// Module registers the GCS StorageProvider.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
	)),
)
