package mail

import (
	"context"
	"sync"

	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

type envelope struct {
	to, subject, body string
}

// AsyncGateway queues messages and delivers them from a fixed set of workers, so a
// slow relay never holds up chunk processing.
type AsyncGateway struct {
	next  ports.MailGateway
	queue chan envelope
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsyncGateway starts workers goroutines in front of next.
func NewAsyncGateway(next ports.MailGateway, workers, capacity int) *AsyncGateway {
	if workers < 1 {
		workers = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	g := &AsyncGateway{next: next, queue: make(chan envelope, capacity)}
	for i := 0; i < workers; i++ {
		g.wg.Add(1)
		go g.work()
	}
	return g
}

// Send enqueues the message. It fails fast when the queue is full or closed.
func (g *AsyncGateway) Send(ctx context.Context, to, subject, htmlBody string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return exception.NewRejectionError("mail", "mail gateway is closed", ErrQueueFull)
	}
	select {
	case g.queue <- envelope{to: to, subject: subject, body: htmlBody}:
		return nil
	default:
		return exception.NewRejectionError("mail", "dropping email "+subject, ErrQueueFull)
	}
}

func (g *AsyncGateway) work() {
	defer g.wg.Done()
	for e := range g.queue {
		if err := g.next.Send(context.Background(), e.to, e.subject, e.body); err != nil {
			logger.Errorf("Failed to send email %q to %s: %v", e.subject, e.to, err)
		}
	}
}

// Close stops accepting messages and waits until the queue is drained.
func (g *AsyncGateway) Close(ctx context.Context) error {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.queue)
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.MailGateway = (*AsyncGateway)(nil)
