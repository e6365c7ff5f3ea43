package export

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
)

// NewConfiguredExporter decodes the "export" properties. Reports go to the upload storage
// unless storageRef says otherwise.
func NewConfiguredExporter(cfg *config.Config, errorRepo repository.RowErrorRepository, resolver storage.StorageConnectionResolver) (*ErrorExporter, error) {
	props := map[string]interface{}{"storageRef": cfg.Importer.Infrastructure.StorageRef}
	for k, v := range cfg.Importer.Export {
		props[k] = v
	}
	exportCfg, err := DecodeConfig(props)
	if err != nil {
		return nil, err
	}
	return NewErrorExporter(exportCfg, errorRepo, resolver), nil
}

// Module provides *ErrorExporter.
var Module = fx.Options(
	fx.Provide(NewConfiguredExporter),
)
