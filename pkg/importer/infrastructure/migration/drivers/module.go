// Package drivers registers the golang-migrate database drivers by URL scheme, for the
// migrate command when it is given a database URL instead of a configured connection.
package drivers

import (
	"go.uber.org/fx"

	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
)

// Module exists so that the blank imports are part of the application graph.
var Module = fx.Options()
