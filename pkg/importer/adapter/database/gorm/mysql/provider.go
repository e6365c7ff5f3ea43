// Package mysql provides a GORM DBProvider for MySQL databases.
package mysql

import (
	"strconv"
	"time"

	drivermysql "github.com/go-sql-driver/mysql"

	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
	gormadapter "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/gorm"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString builds the DSN with the driver's own formatter.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := drivermysql.NewConfig()
	dsn.User = c.User
	dsn.Passwd = c.Password
	dsn.Net = "tcp"
	dsn.Addr = c.Host
	if c.Port > 0 {
		dsn.Addr = c.Host + ":" + strconv.Itoa(c.Port)
	}
	dsn.DBName = c.Database
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	dsn.Params = map[string]string{"charset": "utf8mb4"}
	return dsn.FormatDSN()
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) *MySQLDBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}
