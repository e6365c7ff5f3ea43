package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	coremetrics "github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/infrastructure/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	ctx := context.Background()
	r := metrics.NewPrometheusRecorder()

	r.RecordChunk(ctx, coremetrics.OutcomeSuccess, 1000, 2*time.Second)
	r.RecordChunk(ctx, coremetrics.OutcomeSuccess, 500, time.Second)
	r.RecordRows(ctx, 999, 1)
	r.RecordRetry(ctx, "TransientInfraError")
	r.RecordBreakerState(ctx, "chunkProcessor", "OPEN")
	r.RecordDispatch(ctx, 3, true)
	r.RecordJobFinished(ctx, model.JobStatusCompleted)
	r.RecordDuration(ctx, "upsert", time.Millisecond, map[string]string{"b": "2", "a": "1"})

	n, err := testutil.GatherAndCount(r.GetRegistry(), "import_chunk_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	text := string(body)

	assert.Contains(t, text, `import_chunk_total{outcome="success"} 2`)
	assert.Contains(t, text, `import_chunk_rows_total{outcome="success"} 1500`)
	assert.Contains(t, text, `import_rows_total{result="error"} 1`)
	assert.Contains(t, text, `import_circuit_breaker_state{name="chunkProcessor",state="OPEN"} 1`)
	assert.Contains(t, text, `import_circuit_breaker_state{name="chunkProcessor",state="CLOSED"} 0`)
	assert.Contains(t, text, `import_dispatch_total{caller_runs="true"} 1`)
	assert.Contains(t, text, `import_job_finished_total{status="COMPLETED"} 1`)
	assert.Contains(t, text, `tags="a=1,b=2"`)
}

func TestOpenTelemetryTracer_ChunkSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := metrics.NewOpenTelemetryTracer(tp)

	msg := model.NewChunkMessage("job-1", "ref", "", model.ChunkRange{Index: 1, Start: 1001, End: 2000}, 3)
	ctx, end := tracer.StartChunkSpan(context.Background(), msg)
	tracer.RecordEvent(ctx, "rows.classified", map[string]interface{}{"valid": 999, "errors": 1})
	tracer.RecordError(ctx, "consumer", errors.New("db down"))
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "import.chunk", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("import.job_id", "job-1"))
	assert.Contains(t, span.Attributes(), attribute.Int("import.chunk_index", 1))
	assert.Equal(t, codes.Error, span.Status().Code)

	names := make([]string, 0, len(span.Events()))
	for _, e := range span.Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "rows.classified")
	assert.Contains(t, names, "exception")
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, shutdown, err := metrics.NewTracerProvider(context.Background(), config.TracingConfig{})
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewTracerProvider_UnknownProtocol(t *testing.T) {
	_, _, err := metrics.NewTracerProvider(context.Background(), config.TracingConfig{
		Enabled:  true,
		Protocol: "thrift",
		Endpoint: "localhost:4318",
	})
	assert.ErrorContains(t, err, "unsupported otlp protocol")
}
