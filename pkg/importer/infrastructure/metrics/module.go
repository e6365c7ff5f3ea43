package metrics

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	metrics "github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
)

// NewConfiguredTracerProvider is the Fx provider of the trace provider.
func NewConfiguredTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	tp, shutdown, err := NewTracerProvider(context.Background(), cfg.Importer.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(shutdown))
	return tp, nil
}

// Module is an Fx module that provides PrometheusRecorder and OpenTelemetryTracer.
var Module = fx.Options(
	fx.Provide(
		NewPrometheusRecorder,
		func(r *PrometheusRecorder) metrics.MetricRecorder { return r },
		NewConfiguredTracerProvider,
		fx.Annotate(
			NewOpenTelemetryTracer,
			fx.As(new(metrics.Tracer)),
		),
	),
)
