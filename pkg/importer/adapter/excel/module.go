package excel

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// Module provides the xlsx RowReader backed by the upload FileStore.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(files *storage.FileStore) *Reader { return NewReader(files) },
			fx.As(new(ports.RowReader)),
		),
	),
)
