// Package resilience guards chunk processing with a bulkhead, a circuit breaker and
// a retry policy with exponential backoff.
package resilience

import (
	"math"
	"time"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// RetryPolicy decides whether and when a failed attempt is retried.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait before the next attempt, for a 1-based attempt number.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the total number of attempts, including the first.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory creates exponential backoff policies.
type DefaultRetryPolicyFactory struct{}

func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create builds a policy from cfg. Non-positive values fall back to one attempt and no wait.
func (f *DefaultRetryPolicyFactory) Create(cfg config.RetryConfig) RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	return &exponentialRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     config.Millis(cfg.InitialInterval),
		maxInterval:         config.Millis(cfg.MaxInterval),
		multiplier:          multiplier,
		retryableExceptions: cfg.RetryableExceptions,
	}
}

type exponentialRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	maxInterval         time.Duration
	multiplier          float64
	retryableExceptions []string
}

func (p *exponentialRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry retries transient errors and errors named in the configured list.
// Rejections, configuration faults and validation failures are never retried.
func (p *exponentialRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	switch exception.KindOf(err) {
	case exception.KindRejection, exception.KindConfiguration, exception.KindValidation:
		return false
	}
	if exception.IsTemporary(err) {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// GetBackoffInterval returns initial * multiplier^(attempt-1), capped at the max interval.
func (p *exponentialRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.initialInterval) * math.Pow(p.multiplier, float64(attempt-1)))
	if p.maxInterval > 0 && d > p.maxInterval {
		return p.maxInterval
	}
	return d
}

var _ RetryPolicy = (*exponentialRetryPolicy)(nil)
