// Package app composes the import pipeline modules into an Fx application.
package app

import (
	"context"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/broker/rabbitmq"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/cache/redis"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm/mysql"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm/postgres"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm/sqlite"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/excel"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/mail"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/realtime/websocket"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage/gcs"
	"github.com/tigerroll/payroll-import/pkg/importer/adapter/storage/local"
	"github.com/tigerroll/payroll-import/pkg/importer/component/export"
	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/consumer"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/deadletter"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/dispatch"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/resilience"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/migration"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/repository/sql"
	"github.com/tigerroll/payroll-import/pkg/importer/listener/notification"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// DBProviderModules maps a database type to the module registering its provider.
var DBProviderModules = map[string]fx.Option{
	"postgres": postgres.Module,
	"redshift": postgres.Module,
	"mysql":    mysql.Module,
	"sqlite":   sqlite.Module,
}

// DBProviderOptions selects the DB providers named in the comma separated adaptors list,
// or in the DB_ADAPTORS environment variable when the list is empty. All of them are
// registered by default.
func DBProviderOptions(adaptors string) []fx.Option {
	if adaptors == "" {
		adaptors = os.Getenv("DB_ADAPTORS")
	}
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}

	seen := make(map[string]bool)
	options := make([]fx.Option, 0)
	for _, name := range strings.Split(adaptors, ",") {
		name = strings.TrimSpace(name)
		if name == "redshift" {
			name = "postgres"
		}
		if name == "" || seen[name] {
			continue
		}
		module, ok := DBProviderModules[name]
		if !ok {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
			continue
		}
		seen[name] = true
		options = append(options, module)
		logger.Debugf("DB Provider '%s' selected and registered.", name)
	}
	return options
}

// Module holds every component shared by the server, the worker and the CLI commands.
var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,

	gormadapter.Module,
	sql.Module,
	migration.Module,

	storage.Module,
	local.Module,
	gcs.Module,
	excel.Module,

	redis.Module,
	websocket.Module,
	mail.Module,
	rabbitmq.Module,
	notification.Module,

	resilience.Module,
	deadletter.Module,
	consumer.Module,
	dispatch.Module,

	export.Module,
	usecase.Module,
)

// WorkerModule starts the chunk queue consumers.
var WorkerModule = fx.Options(
	fx.Invoke(registerChunkConsumers),
)

func registerChunkConsumers(lc fx.Lifecycle, conn *rabbitmq.Connection, handler *consumer.Consumer, cfg *config.Config) {
	c := rabbitmq.NewConsumer(conn, handler, cfg.Importer.Broker)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start(ctx)
			return nil
		},
		OnStop: c.Stop,
	})
}
