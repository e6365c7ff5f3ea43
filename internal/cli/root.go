// Package cli provides the command-line interface of payroll-import.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/internal/app"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	envFilePath string
	dbAdaptors  string

	embeddedConfig config.EmbeddedConfig
)

var rootCmd = &cobra.Command{
	Use:   "payroll-import",
	Short: "Chunked payroll spreadsheet import",
	Long: `payroll-import loads payroll spreadsheets (.xlsx) into the salaries table.

An upload is split into chunks of rows that are published to RabbitMQ and
processed by the workers. Progress is kept in Redis, pushed over websockets
and mailed to the requester when the job ends.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line. embedded is the default application.yaml.
func Execute(embedded []byte) error {
	embeddedConfig = embedded

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	defaultEnv := os.Getenv("ENV_FILE_PATH")
	if defaultEnv == "" {
		defaultEnv = ".env"
	}
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", defaultEnv, "path of the .env file")
	rootCmd.PersistentFlags().StringVar(&dbAdaptors, "db-adaptors", "", "comma separated database types to register (default $DB_ADAPTORS or all)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(pauseCmd, resumeCmd, cancelCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(exportErrorsCmd)
}

func options() app.Options {
	return app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: embeddedConfig,
		DBAdaptors:     dbAdaptors,
	}
}

// withApp starts a container without the API and the consumers, fills targets and
// runs fn. The container is stopped even when fn fails.
func withApp(ctx context.Context, fn func() error, targets ...interface{}) (err error) {
	stop, err := app.Open(ctx, options(), targets...)
	if err != nil {
		return fmt.Errorf("start application: %w", err)
	}
	defer func() {
		if stopErr := stop(); stopErr != nil && err == nil {
			err = fmt.Errorf("stop application: %w", stopErr)
		}
	}()
	return fn()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
