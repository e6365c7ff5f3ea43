package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

const dialAttempts = 3

// Connection owns the AMQP connection and re-dials it when the broker drops it.
type Connection struct {
	url     string
	backoff time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewConnection creates a lazily dialled connection.
func NewConnection(cfg *config.Config) *Connection {
	b := cfg.Importer.Broker
	return &Connection{url: b.URL, backoff: config.Millis(b.ReconnectBackoff)}
}

// Channel opens a new channel, dialling the broker first if needed.
func (c *Connection) Channel(ctx context.Context) (Channel, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, exception.NewTransientError("broker", "rabbitmq channel open failed", err)
	}
	return ch, nil
}

func (c *Connection) connection(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	var err error
	for i := 0; i < dialAttempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(c.url)
		if err == nil {
			c.conn = conn
			logger.Infof("Connected to RabbitMQ.")
			return conn, nil
		}
		logger.Warnf("RabbitMQ dial attempt %d/%d failed: %v", i+1, dialAttempts, err)
		if i < dialAttempts-1 {
			if serr := sleepWithContext(ctx, c.backoff*time.Duration(i+1)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, exception.NewTransientError("broker", "rabbitmq connect failed", err)
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
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
