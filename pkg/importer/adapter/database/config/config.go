// Package config holds the connection settings of the relational store.
package config

import "fmt"

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`     // "postgres", "mysql" or "sqlite".
	Host     string     `yaml:"host"`     // Database host address.
	Port     int        `yaml:"port"`     // Database port number.
	Database string     `yaml:"database"` // Database name, or file path for sqlite.
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Sslmode  string     `yaml:"sslmode"`
	Pool     PoolConfig `yaml:"pool"`
}

// Validate checks the settings required by every driver.
func (c DatabaseConfig) Validate() error {
	switch c.Type {
	case "postgres", "mysql":
		if c.Host == "" || c.Database == "" {
			return fmt.Errorf("%s connection requires host and database", c.Type)
		}
	case "sqlite":
		if c.Database == "" {
			return fmt.Errorf("sqlite connection requires a database path")
		}
	default:
		return fmt.Errorf("unsupported database type: %q", c.Type)
	}
	return nil
}
