package resilience

import (
	"context"
	"fmt"
	"time"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

// Bulkhead caps concurrent calls. A caller waits at most maxWait for a permit.
type Bulkhead struct {
	name    string
	permits chan struct{}
	maxWait time.Duration
}

func NewBulkhead(name string, cfg config.BulkheadConfig) *Bulkhead {
	size := cfg.MaxConcurrentCalls
	if size < 1 {
		size = 1
	}
	return &Bulkhead{
		name:    name,
		permits: make(chan struct{}, size),
		maxWait: config.Millis(cfg.MaxWaitDuration),
	}
}

// Acquire takes a permit. The returned release function must be called exactly once.
func (b *Bulkhead) Acquire(ctx context.Context) (func(), error) {
	release := func() { <-b.permits }
	select {
	case b.permits <- struct{}{}:
		return release, nil
	default:
	}
	if b.maxWait <= 0 {
		return nil, b.full()
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()
	select {
	case b.permits <- struct{}{}:
		return release, nil
	case <-timer.C:
		return nil, b.full()
	case <-ctx.Done():
		return nil, exception.NewRejectionError("Bulkhead", fmt.Sprintf("bulkhead '%s': wait interrupted", b.name), ctx.Err())
	}
}

func (b *Bulkhead) full() error {
	return exception.NewRejectionError("Bulkhead",
		fmt.Sprintf("bulkhead '%s' is full (%d concurrent calls)", b.name, cap(b.permits)), exception.ErrBulkheadFull)
}

// InUse returns the number of permits currently held.
func (b *Bulkhead) InUse() int {
	return len(b.permits)
}
