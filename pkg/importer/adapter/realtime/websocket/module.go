package websocket

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// Module provides the Hub as the progress broadcaster.
var Module = fx.Options(
	fx.Provide(
		func(cfg *config.Config) *Hub { return NewHub(cfg.Importer.HTTP.AllowedOrigin) },
		func(h *Hub) ports.ProgressBroadcaster { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h *Hub) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			h.Close()
			return nil
		}})
	}),
)
