package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
)

// Module registers the local StorageProvider.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storageAdapter.StorageProvider)),
		fx.ResultTags(`group:"`+storageAdapter.StorageProviderGroup+`"`),
	)),
)
