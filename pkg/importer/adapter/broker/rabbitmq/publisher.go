package rabbitmq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// Publisher sends chunk messages and progress updates on one shared channel.
type Publisher struct {
	opener ChannelOpener
	cfg    config.BrokerConfig

	mu sync.Mutex
	ch Channel
}

// NewPublisher creates a Publisher. The channel is opened on first use.
func NewPublisher(opener ChannelOpener, cfg config.BrokerConfig) *Publisher {
	return &Publisher{opener: opener, cfg: cfg}
}

// PublishChunk publishes a persistent chunk message routed to the work queue.
func (p *Publisher) PublishChunk(ctx context.Context, msg model.ChunkMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return exception.NewConfigurationError("broker", "failed to encode chunk message", err)
	}
	err = p.publish(ctx, p.cfg.RoutingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageID(),
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"x-chunk-index":  int64(msg.ChunkIndex),
			"x-total-chunks": int64(msg.TotalChunks),
		},
		Body: body,
	})
	if err != nil {
		return err
	}
	logger.Debugf("Published %s", msg)
	return nil
}

// PublishProgress publishes a transient progress update to the notification queue.
func (p *Publisher) PublishProgress(ctx context.Context, update model.ProgressUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return exception.NewConfigurationError("broker", "failed to encode progress update", err)
	}
	return p.publish(ctx, p.cfg.NotificationRoutingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    update.JobID,
		Timestamp:    update.Timestamp,
		Body:         body,
	})
}

func (p *Publisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.opener.Channel(ctx)
		if err != nil {
			return err
		}
		if err := DeclareTopology(ch, p.cfg); err != nil {
			_ = ch.Close()
			return exception.NewTransientError("broker", "rabbitmq topology declare failed", err)
		}
		p.ch = ch
	}

	if err := p.ch.PublishWithContext(ctx, p.cfg.Exchange, key, false, false, msg); err != nil {
		// The channel is unusable after a failed publish; reopen on the next call.
		_ = p.ch.Close()
		p.ch = nil
		return exception.NewTransientError("broker", "rabbitmq publish to "+key+" failed", err)
	}
	return nil
}

// Close closes the publishing channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

var (
	_ ports.ChunkPublisher    = (*Publisher)(nil)
	_ ports.ProgressPublisher = (*Publisher)(nil)
)
