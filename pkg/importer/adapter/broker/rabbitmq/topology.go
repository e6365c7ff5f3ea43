// Package rabbitmq implements the chunk work queue and the progress notification
// channel on RabbitMQ.
package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
)

// Channel is the part of *amqp.Channel used by the adapter.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// ChannelOpener hands out channels on a live broker connection.
type ChannelOpener interface {
	Channel(ctx context.Context) (Channel, error)
}

var _ Channel = (*amqp.Channel)(nil)

// ChunkQueueArgs returns the arguments of the chunk work queue. Expired, rejected and
// overflowing messages are routed to the dead-letter exchange.
func ChunkQueueArgs(cfg config.BrokerConfig) amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    cfg.DeadLetterExchange,
		"x-dead-letter-routing-key": cfg.DeadLetterRoutingKey,
	}
	if cfg.MessageTTL > 0 {
		args["x-message-ttl"] = int64(cfg.MessageTTL)
	}
	if cfg.MaxLength > 0 {
		args["x-max-length"] = int64(cfg.MaxLength)
	}
	return args
}

// DeclareTopology declares the exchanges, queues and bindings. Declarations are
// idempotent, so every new channel may call it.
func DeclareTopology(ch Channel, cfg config.BrokerConfig) error {
	for _, name := range []string{cfg.Exchange, cfg.DeadLetterExchange} {
		if err := ch.ExchangeDeclare(name, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq exchange %s declare failed: %w", name, err)
		}
	}

	var dlqArgs amqp.Table
	if cfg.DeadLetterTTL > 0 {
		dlqArgs = amqp.Table{"x-message-ttl": int64(cfg.DeadLetterTTL)}
	}
	queues := []struct {
		name, key, exchange string
		args                amqp.Table
	}{
		{cfg.Queue, cfg.RoutingKey, cfg.Exchange, ChunkQueueArgs(cfg)},
		{cfg.DeadLetterQueue, cfg.DeadLetterRoutingKey, cfg.DeadLetterExchange, dlqArgs},
		{cfg.NotificationQueue, cfg.NotificationRoutingKey, cfg.Exchange, nil},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("rabbitmq queue %s declare failed: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.key, q.exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq queue %s bind failed: %w", q.name, err)
		}
	}
	return nil
}
