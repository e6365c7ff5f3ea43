// Package database defines the relational store abstraction used by the repositories.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/database/config"
)

// Where is a raw SQL predicate with positional arguments, e.g. Cond("version = ?", 3).
type Where struct {
	Query string
	Args  []interface{}
}

// Cond builds a Where.
func Cond(query string, args ...interface{}) Where {
	return Where{Query: query, Args: args}
}

// Expr is a raw SQL expression usable as an update value, e.g. Expression("version + 1").
type Expr struct {
	SQL  string
	Vars []interface{}
}

// Expression builds an Expr.
func Expression(sql string, vars ...interface{}) Expr {
	return Expr{SQL: sql, Vars: vars}
}

// DBExecutor defines the write and read operations the repositories rely on.
type DBExecutor interface {
	// ExecuteUpdate performs CREATE or DELETE of a model (or slice of models).
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert performs INSERT ... ON CONFLICT DO UPDATE (or DO NOTHING when updateColumns is empty).
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// UpdateWhere updates columns of every row matching all conditions. Conditional
	// updates (check-and-set) rely on the returned row count.
	UpdateWhere(ctx context.Context, tableName string, values map[string]interface{}, conds ...Where) (rowsAffected int64, err error)

	// ExecuteQuery executes a SELECT with equality conditions.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// QueryWhere executes a SELECT with raw predicates, optional ordering and limit.
	QueryWhere(ctx context.Context, target interface{}, orderBy string, limit int, conds ...Where) error

	// Count counts the records matching the query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// CountGroupBy counts the records matching the query per distinct value of column.
	CountGroupBy(ctx context.Context, model interface{}, column string, query map[string]interface{}) (map[string]int64, error)
}

// DBConnection represents a named database connection.
type DBConnection interface {
	DBExecutor

	Type() string
	Name() string
	Close() error

	// RefreshConnection pings the pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the configuration the connection was opened with.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a healthy connection by name, reconnecting if necessary.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	// Type returns the database type handled by this provider (e.g. "postgres").
	Type() string
	// ForceReconnect closes and reopens the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"
