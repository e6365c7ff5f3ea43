package usecase

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/dispatch"
)

// LauncherParams are the dependencies of the launcher.
type LauncherParams struct {
	fx.In
	Cfg        *config.Config
	Jobs       repository.JobRepository
	Files      *storage.FileStore
	Reader     ports.RowReader
	Dispatcher *dispatch.Dispatcher
	Notifier   ports.Notifier `optional:"true"`
}

// NewConfiguredLauncher builds the launcher over the upload store and the dispatcher.
func NewConfiguredLauncher(p LauncherParams) *SimpleImportLauncher {
	return NewSimpleImportLauncher(p.Jobs, p.Files, p.Reader, p.Dispatcher, p.Notifier, p.Cfg.Importer.Import.StatusURLPrefix)
}

// ExplorerParams are the dependencies of the explorer.
type ExplorerParams struct {
	fx.In
	Jobs   repository.JobRepository
	Errors repository.RowErrorRepository
	Cache  ports.ProgressCache `optional:"true"`
}

func NewConfiguredExplorer(p ExplorerParams) *SimpleImportExplorer {
	return NewSimpleImportExplorer(p.Jobs, p.Errors, p.Cache)
}

// Module provides ImportLauncher, ImportExplorer and ImportOperator.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewConfiguredLauncher,
		fx.As(new(ImportLauncher)),
	)),
	fx.Provide(fx.Annotate(
		NewConfiguredExplorer,
		fx.As(new(ImportExplorer)),
	)),
	fx.Provide(fx.Annotate(
		NewDefaultImportOperator,
		fx.As(new(ImportOperator)),
	)),
)
