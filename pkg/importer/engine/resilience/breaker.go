package resilience

import (
	"fmt"
	"sync"
	"time"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

type callOutcome struct {
	failed bool
	slow   bool
}

// CircuitBreaker is a count-based sliding-window breaker.
//
// While CLOSED it records the last SlidingWindowSize calls and opens once at least
// MinimumNumberOfCalls were recorded and either the failure rate or the slow-call rate
// reaches its threshold. While OPEN every call is rejected until WaitDurationInOpenState
// has elapsed, after which up to PermittedCallsInHalfOpenState trial calls are let
// through. A successful trial closes the circuit; a failed one reopens it.
type CircuitBreaker struct {
	name string
	cfg  config.CircuitBreakerConfig
	now  func() time.Time

	mu             sync.Mutex
	state          BreakerState
	window         []callOutcome
	next           int
	filled         int
	openedAt       time.Time
	trialsInFlight int

	listeners []func(name string, from, to BreakerState)
}

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// WithStateListener registers a callback invoked (outside the lock) on every transition.
func WithStateListener(fn func(name string, from, to BreakerState)) BreakerOption {
	return func(b *CircuitBreaker) { b.listeners = append(b.listeners, fn) }
}

func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if cfg.SlidingWindowSize < 1 {
		cfg.SlidingWindowSize = 1
	}
	if cfg.MinimumNumberOfCalls < 1 {
		cfg.MinimumNumberOfCalls = 1
	}
	if cfg.MinimumNumberOfCalls > cfg.SlidingWindowSize {
		cfg.MinimumNumberOfCalls = cfg.SlidingWindowSize
	}
	if cfg.PermittedCallsInHalfOpenState < 1 {
		cfg.PermittedCallsInHalfOpenState = 1
	}
	b := &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		state:  StateClosed,
		window: make([]callOutcome, cfg.SlidingWindowSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the current state, moving OPEN to HALF_OPEN when the wait has elapsed.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	from, to := b.refreshLocked()
	state := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return state
}

// Acquire asks for permission to make a call. It returns an ErrCircuitOpen rejection
// when the circuit is open or the half-open trial slots are taken.
func (b *CircuitBreaker) Acquire() error {
	b.mu.Lock()
	from, to := b.refreshLocked()
	var err error
	switch b.state {
	case StateOpen:
		err = exception.NewRejectionError("CircuitBreaker", fmt.Sprintf("circuit '%s' is OPEN", b.name), exception.ErrCircuitOpen)
	case StateHalfOpen:
		if b.trialsInFlight >= b.cfg.PermittedCallsInHalfOpenState {
			err = exception.NewRejectionError("CircuitBreaker", fmt.Sprintf("circuit '%s' is HALF_OPEN and has no free trial slot", b.name), exception.ErrCircuitOpen)
		} else {
			b.trialsInFlight++
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
	return err
}

// OnResult records the outcome of a call admitted by Acquire.
func (b *CircuitBreaker) OnResult(duration time.Duration, err error) {
	outcome := callOutcome{
		failed: err != nil,
		slow:   b.cfg.SlowCallDuration > 0 && duration >= config.Millis(b.cfg.SlowCallDuration),
	}

	b.mu.Lock()
	var from, to BreakerState
	switch b.state {
	case StateHalfOpen:
		if b.trialsInFlight > 0 {
			b.trialsInFlight--
		}
		if outcome.failed || outcome.slow {
			from, to = b.transitionLocked(StateOpen)
		} else {
			from, to = b.transitionLocked(StateClosed)
		}
	case StateClosed:
		b.record(outcome)
		if b.tripped() {
			from, to = b.transitionLocked(StateOpen)
		}
	}
	b.mu.Unlock()
	b.notify(from, to)
}

func (b *CircuitBreaker) record(o callOutcome) {
	b.window[b.next] = o
	b.next = (b.next + 1) % len(b.window)
	if b.filled < len(b.window) {
		b.filled++
	}
}

func (b *CircuitBreaker) tripped() bool {
	if b.filled < b.cfg.MinimumNumberOfCalls {
		return false
	}
	failed, slow := 0, 0
	for i := 0; i < b.filled; i++ {
		if b.window[i].failed {
			failed++
		}
		if b.window[i].slow {
			slow++
		}
	}
	failureRate := float64(failed) * 100 / float64(b.filled)
	slowRate := float64(slow) * 100 / float64(b.filled)
	return (b.cfg.FailureRateThreshold > 0 && failureRate >= b.cfg.FailureRateThreshold) ||
		(b.cfg.SlowCallRateThreshold > 0 && slowRate >= b.cfg.SlowCallRateThreshold)
}

func (b *CircuitBreaker) refreshLocked() (BreakerState, BreakerState) {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(config.Millis(b.cfg.WaitDurationInOpenState))) {
		return b.transitionLocked(StateHalfOpen)
	}
	return "", ""
}

func (b *CircuitBreaker) transitionLocked(to BreakerState) (BreakerState, BreakerState) {
	from := b.state
	if from == to {
		return "", ""
	}
	b.state = to
	b.trialsInFlight = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.next, b.filled = 0, 0
	}
	return from, to
}

func (b *CircuitBreaker) notify(from, to BreakerState) {
	if to == "" {
		return
	}
	logger.Warnf("Circuit breaker '%s' changed state: %s -> %s", b.name, from, to)
	for _, fn := range b.listeners {
		fn(b.name, from, to)
	}
}
