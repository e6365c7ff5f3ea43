package dispatch

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// DispatcherParams are the dependencies of the Dispatcher.
type DispatcherParams struct {
	fx.In
	Cfg       *config.Config
	Jobs      repository.JobRepository
	Reader    ports.RowReader
	Publisher ports.ChunkPublisher
	Notifier  ports.Notifier
	Pool      *Pool
	Recorder  metrics.MetricRecorder `optional:"true"`
	Tracer    metrics.Tracer         `optional:"true"`
}

// NewConfiguredPool is the Fx provider of the dispatch pool.
func NewConfiguredPool(lc fx.Lifecycle, cfg *config.Config) *Pool {
	ic := cfg.Importer.Import
	p := NewPool(ic.DispatchWorkers, ic.DispatchQueueCapacity)
	lc.Append(fx.StopHook(p.Stop))
	return p
}

// NewConfiguredDispatcher is the Fx provider of the Dispatcher.
func NewConfiguredDispatcher(p DispatcherParams) *Dispatcher {
	return NewDispatcher(p.Jobs, p.Reader, p.Publisher, p.Notifier, p.Pool, p.Recorder, p.Tracer, p.Cfg.Importer.Import.ChunkSize)
}

// Module provides the dispatch pool and the Dispatcher.
var Module = fx.Options(
	fx.Provide(NewConfiguredPool, NewConfiguredDispatcher),
)
