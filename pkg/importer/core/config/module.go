package config

import "go.uber.org/fx"

// Module provides *Config from the embedded YAML supplied by main.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
)
