package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/core/ports"
)

// Module provides the Redis client and the progress cache.
var Module = fx.Options(
	fx.Provide(
		NewClient,
		func(client *goredis.Client, cfg *config.Config) ports.ProgressCache {
			c := cfg.Importer.Cache
			return NewProgressCache(client, c.KeyPrefix, c.CacheTTL())
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, client *goredis.Client) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	}),
)
