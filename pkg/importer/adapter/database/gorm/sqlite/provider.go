// Package sqlite provides a GORM DBProvider for SQLite databases.
package sqlite

import (
	"errors"
	"strings"

	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString returns the file path with a busy timeout so concurrent
// consumers wait for the write lock instead of failing.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if strings.Contains(c.Database, "?") {
		return c.Database
	}
	return c.Database + "?_busy_timeout=5000"
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) *SQLiteDBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}
