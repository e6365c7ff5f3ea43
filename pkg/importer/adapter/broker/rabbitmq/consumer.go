package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// ChunkHandler processes one decoded chunk. It owns the outcome: failures have been
// dead-lettered by the time it returns.
type ChunkHandler interface {
	HandleChunk(ctx context.Context, msg model.ChunkMessage)
}

// Consumer runs the chunk queue workers. Each worker owns one channel with its own
// prefetch window and acknowledges manually.
type Consumer struct {
	opener  ChannelOpener
	handler ChunkHandler
	cfg     config.BrokerConfig
	backoff time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer creates a Consumer.
func NewConsumer(opener ChannelOpener, handler ChunkHandler, cfg config.BrokerConfig) *Consumer {
	return &Consumer{
		opener:  opener,
		handler: handler,
		cfg:     cfg,
		backoff: config.Millis(cfg.ReconnectBackoff),
	}
}

// Workers returns the number of workers Start launches.
func (c *Consumer) Workers() int {
	n := c.cfg.Concurrency
	if n < 1 {
		n = 1
	}
	if c.cfg.MaxConcurrency > 0 && n > c.cfg.MaxConcurrency {
		n = c.cfg.MaxConcurrency
	}
	return n
}

// Start launches the workers in the background. Stop ends them.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	n := c.Workers()
	logger.Infof("Starting %d chunk consumers on queue %s (prefetch %d).", n, c.cfg.Queue, c.cfg.Prefetch)
	for i := 0; i < n; i++ {
		tag := fmt.Sprintf("%s-%d", c.cfg.ConsumerTagPrefix, i)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.run(runCtx, tag)
		}()
	}
}

// Stop cancels the workers and waits for in-flight chunks to finish.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Infof("Chunk consumers stopped.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) run(ctx context.Context, tag string) {
	for {
		err := c.session(ctx, tag)
		if err == nil || ctx.Err() != nil {
			return
		}
		logger.Warnf("Consumer %s session failed: %v; reconnecting after %s", tag, err, c.backoff)
		if sleepWithContext(ctx, c.backoff) != nil {
			return
		}
	}
}

func (c *Consumer) session(ctx context.Context, tag string) error {
	ch, err := c.opener.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := DeclareTopology(ch, c.cfg); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos setup failed: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume setup failed: %w", err)
	}

	logger.Debugf("Consumer %s consuming queue %s", tag, c.cfg.Queue)
	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(tag, false); err != nil {
				logger.Warnf("Consumer %s cancel failed: %v", tag, err)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq deliveries channel closed unexpectedly")
			}
			// An admitted chunk runs to completion even if shutdown starts.
			c.deliver(context.WithoutCancel(ctx), d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	var msg model.ChunkMessage
	err := json.Unmarshal(d.Body, &msg)
	if err == nil {
		err = msg.Validate()
	}
	if err != nil {
		logger.Errorf("Rejecting undecodable chunk message id=%q: %v", d.MessageId, err)
		if nerr := d.Nack(false, false); nerr != nil {
			logger.Warnf("Nack failed delivery_tag=%d: %v", d.DeliveryTag, nerr)
		}
		return
	}

	c.handler.HandleChunk(ctx, msg)

	if err := d.Ack(false); err != nil {
		logger.Warnf("Ack failed for %s delivery_tag=%d: %v", msg.MessageID(), d.DeliveryTag, err)
	}
}
