package rabbitmq

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// NewConfiguredPublisher is the Fx provider of the Publisher.
func NewConfiguredPublisher(conn *Connection, cfg *config.Config) *Publisher {
	return NewPublisher(conn, cfg.Importer.Broker)
}

// Module provides the broker connection and the publisher. The chunk Consumer is
// provided by the application because it needs the chunk handler.
var Module = fx.Options(
	fx.Provide(
		NewConnection,
		func(c *Connection) ChannelOpener { return c },
		NewConfiguredPublisher,
		func(p *Publisher) ports.ChunkPublisher { return p },
		func(p *Publisher) ports.ProgressPublisher { return p },
	),
	fx.Invoke(func(lc fx.Lifecycle, conn *Connection, p *Publisher) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			_ = p.Close()
			return conn.Close()
		}})
	}),
)
