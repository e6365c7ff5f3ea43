package main

import (
	_ "embed"
	"os"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/payroll-import/internal/cli"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/logger"
)

// embeddedConfig is the default configuration. The .env file and IMPORTER_*
// environment variables override it.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	if err := cli.Execute(embeddedConfig); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
