package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/realtime/websocket"
	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const shutdownTimeout = 10 * time.Second

// RouterParams are the dependencies of the API router.
type RouterParams struct {
	fx.In
	Cfg      *config.Config
	Launcher usecase.ImportLauncher
	Explorer usecase.ImportExplorer
	Operator usecase.ImportOperator
	Hub      *websocket.Hub              `optional:"true"`
	Recorder *metrics.PrometheusRecorder `optional:"true"`
}

// NewConfiguredRouter wires the handlers onto the router.
func NewConfiguredRouter(p RouterParams) http.Handler {
	routes := Routes{
		Imports:       NewImportHandler(p.Launcher, p.Explorer, p.Operator, p.Cfg.Importer.HTTP.MaxUploadMB),
		AllowedOrigin: p.Cfg.Importer.HTTP.AllowedOrigin,
	}
	if p.Hub != nil {
		routes.Stream = p.Hub
	}
	if p.Recorder != nil {
		routes.Metrics = p.Recorder.Handler()
	}
	return NewRouter(routes)
}

// NewServer creates the HTTP server and binds it to the application lifecycle.
func NewServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Importer.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Infof("HTTP API listening on %s.", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("HTTP server failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			logger.Infof("Shutting down the HTTP API...")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// Module provides the router and starts the HTTP server.
var Module = fx.Options(
	fx.Provide(
		NewConfiguredRouter,
		NewServer,
	),
	fx.Invoke(func(*http.Server) {}),
)
