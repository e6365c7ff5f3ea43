package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/web"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Options select what an application built by New runs.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	// DBAdaptors is a comma separated list of database types (see DBProviderOptions).
	DBAdaptors string
	// Serve starts the HTTP API.
	Serve bool
	// Work starts the chunk queue consumers.
	Work bool
}

// Graph returns the Fx options of the application described by o. extra options are
// appended last, which lets callers populate components or replace providers.
func (o Options) Graph(extra ...fx.Option) fx.Option {
	options := []fx.Option{
		fx.Supply(
			o.EmbeddedConfig,
			fx.Annotate(o.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		fx.Options(DBProviderOptions(o.DBAdaptors)...),
		Module,
	}
	if o.Serve {
		options = append(options, web.Module)
	}
	if o.Work {
		options = append(options, WorkerModule)
	}
	options = append(options, extra...)
	return fx.Options(options...)
}

// New builds the Fx application described by opts.
func New(opts Options, extra ...fx.Option) *fx.App {
	return fx.New(opts.Graph(extra...))
}

// Run starts the application and blocks until ctx is cancelled, then stops it.
func Run(ctx context.Context, opts Options) error {
	app := New(opts)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	logger.Infof("Payroll import started (api: %t, worker: %t).", opts.Serve, opts.Work)

	<-ctx.Done()
	logger.Infof("Shutting down...")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return app.Stop(stopCtx)
}

// Open starts an application without the API and the consumers and fills targets
// (pointers to components, as for fx.Populate). The returned stop function must be
// called once the caller is done; it waits for queued dispatches to finish.
func Open(ctx context.Context, opts Options, targets ...interface{}) (func() error, error) {
	opts.Serve, opts.Work = false, false
	app := New(opts, fx.Populate(targets...))
	if err := app.Err(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		return nil, err
	}
	return func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		return app.Stop(stopCtx)
	}, nil
}
