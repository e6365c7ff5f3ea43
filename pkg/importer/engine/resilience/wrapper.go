package resilience

import (
	"context"
	"time"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/metrics"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Fallback receives the terminal error of a guarded call.
type Fallback func(ctx context.Context, err error)

// Wrapper composes bulkhead, circuit breaker and retry around a call: the bulkhead
// admits, then each attempt asks the breaker for permission and reports its outcome,
// and the retry policy decides whether another attempt follows.
type Wrapper struct {
	bulkhead *Bulkhead
	breaker  *CircuitBreaker
	retry    RetryPolicy
	recorder metrics.MetricRecorder
	sleep    func(ctx context.Context, d time.Duration) error
}

// WrapperOption customises a Wrapper.
type WrapperOption func(*Wrapper)

// WithSleeper replaces the backoff sleep, mostly for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) WrapperOption {
	return func(w *Wrapper) { w.sleep = sleep }
}

// WithBreakerOptions passes options to the circuit breaker built by NewWrapper.
func WithBreakerOptions(opts ...BreakerOption) WrapperOption {
	return func(w *Wrapper) {
		w.breaker = NewCircuitBreaker(w.breaker.Name(), w.breaker.cfg, append(opts, w.listenerOption())...)
	}
}

// NewWrapper builds a wrapper named name (used in logs and metric labels).
func NewWrapper(name string, cfg config.ResilienceConfig, recorder metrics.MetricRecorder, opts ...WrapperOption) *Wrapper {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	w := &Wrapper{
		bulkhead: NewBulkhead(name, cfg.Bulkhead),
		retry:    NewDefaultRetryPolicyFactory().Create(cfg.Retry),
		recorder: recorder,
		sleep:    sleepContext,
	}
	w.breaker = NewCircuitBreaker(name, cfg.CircuitBreaker, w.listenerOption())
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Wrapper) listenerOption() BreakerOption {
	return WithStateListener(func(name string, _, to BreakerState) {
		w.recorder.RecordBreakerState(context.Background(), name, string(to))
	})
}

// Breaker exposes the circuit breaker, e.g. for health reporting.
func (w *Wrapper) Breaker() *CircuitBreaker {
	return w.breaker
}

// Execute runs fn under the wrapper. On terminal failure fallback (if not nil) is
// invoked with the error before it is returned.
func (w *Wrapper) Execute(ctx context.Context, fn func(ctx context.Context) error, fallback Fallback) error {
	err := w.execute(ctx, fn)
	if err != nil && fallback != nil {
		fallback(ctx, err)
	}
	return err
}

func (w *Wrapper) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := w.bulkhead.Acquire(ctx)
	if err != nil {
		w.recorder.RecordRejection(ctx, "bulkhead")
		return err
	}
	defer release()

	maxAttempts := w.retry.GetMaxAttempts()
	for attempt := 1; ; attempt++ {
		if err := w.breaker.Acquire(); err != nil {
			w.recorder.RecordRejection(ctx, "circuit_open")
			return err
		}

		start := time.Now()
		err := fn(ctx)
		w.breaker.OnResult(time.Since(start), err)
		if err == nil {
			return nil
		}

		if attempt >= maxAttempts || !w.retry.ShouldRetry(err) {
			if attempt > 1 {
				logger.Warnf("Giving up after %d attempts: %v", attempt, err)
			}
			return err
		}

		backoff := w.retry.GetBackoffInterval(attempt)
		logger.Warnf("Attempt %d/%d failed, retrying in %s: %v", attempt, maxAttempts, backoff, err)
		w.recorder.RecordRetry(ctx, exception.KindOf(err).String())
		if sleepErr := w.sleep(ctx, backoff); sleepErr != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
