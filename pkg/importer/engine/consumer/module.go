package consumer

import (
	"go.uber.org/fx"

	"github.com/tigerroll/payroll-import/pkg/importer/core/domain/repository"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/deadletter"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/processor"
	"github.com/tigerroll/payroll-import/pkg/importer/engine/resilience"
)

// ConsumerParams are the Fx dependencies of the Consumer.
type ConsumerParams struct {
	fx.In
	Jobs       repository.JobRepository
	Records    repository.RecordRepository
	RowErrors  repository.RowErrorRepository
	Reader     ports.RowReader
	Wrapper    *resilience.Wrapper
	Notifier   ports.Notifier
	DeadLetter *deadletter.Handler
	Recorder   metrics.MetricRecorder `optional:"true"`
	Tracer     metrics.Tracer         `optional:"true"`
}

// Module provides the chunk Consumer.
var Module = fx.Options(
	fx.Provide(
		processor.NewProcessor,
		func(p ConsumerParams, proc *processor.Processor) *Consumer {
			return NewConsumer(Deps{
				Jobs:       p.Jobs,
				Records:    p.Records,
				RowErrors:  p.RowErrors,
				Reader:     p.Reader,
				Processor:  proc,
				Wrapper:    p.Wrapper,
				Notifier:   p.Notifier,
				DeadLetter: p.DeadLetter,
				Recorder:   p.Recorder,
				Tracer:     p.Tracer,
			})
		},
	),
)
