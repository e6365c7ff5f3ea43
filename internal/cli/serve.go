package cli

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/internal/app"
)

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API: uploads, job status, row errors, the progress websocket and
/metrics. The chunk consumers run in the same process unless --no-worker is set.

Examples:
  payroll-import serve
  payroll-import serve --no-worker`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := options()
		opts.Serve = true
		opts.Work = !serveNoWorker
		return app.Run(cmd.Context(), opts)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume chunks from the queue",
	Long: `Run only the chunk consumers. Start as many workers as needed; each one
opens broker.concurrency channels with broker.prefetch unacknowledged chunks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := options()
		opts.Work = true
		return app.Run(cmd.Context(), opts)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not start the chunk consumers")
}
