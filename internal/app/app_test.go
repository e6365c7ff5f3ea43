package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/internal/app"
	"github.com/tigerroll/payroll-import/pkg/importer/component/export"
	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/migration"
)

const testConfig = `
importer:
  infrastructure:
    database_ref: importdb
    storage_ref: uploads
  database:
    importdb:
      type: sqlite
      database: ":memory:"
  storage:
    uploads:
      type: local
      base_dir: /tmp/payroll-import
`

func TestGraph_IsComplete(t *testing.T) {
	tests := []struct {
		name string
		opts app.Options
	}{
		{name: "server and worker", opts: app.Options{Serve: true, Work: true}},
		{name: "server only", opts: app.Options{Serve: true}},
		{name: "worker only", opts: app.Options{Work: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.EmbeddedConfig = []byte(testConfig)
			tt.opts.DBAdaptors = "sqlite"
			require.NoError(t, fx.ValidateApp(tt.opts.Graph()))
		})
	}
}

func TestGraph_PopulatesCommandTargets(t *testing.T) {
	opts := app.Options{EmbeddedConfig: []byte(testConfig), DBAdaptors: "sqlite"}

	var (
		launcher usecase.ImportLauncher
		explorer usecase.ImportExplorer
		operator usecase.ImportOperator
		exporter *export.ErrorExporter
		migrator *migration.Migrator
	)
	err := fx.ValidateApp(opts.Graph(fx.Populate(&launcher, &explorer, &operator, &exporter, &migrator)))
	assert.NoError(t, err)
}

func TestDBProviderOptions(t *testing.T) {
	assert.Len(t, app.DBProviderOptions("postgres,mysql,sqlite"), 3)
	assert.Len(t, app.DBProviderOptions("postgres, redshift"), 1)
	assert.Len(t, app.DBProviderOptions("sqlite,oracle"), 1)

	t.Setenv("DB_ADAPTORS", "mysql")
	assert.Len(t, app.DBProviderOptions(""), 1)
}
