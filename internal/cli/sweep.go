package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
)

var sweepOlderThan time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Move stalled jobs to ERROR",
	Long: `Move to ERROR every PROCESSING job that has not been updated for --older-than.
The requester of each job is notified.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive, got %s", sweepOlderThan)
		}
		var operator usecase.ImportOperator
		return withApp(cmd.Context(), func() error {
			ids, err := operator.Sweep(cmd.Context(), sweepOlderThan)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d stalled job(s) moved to ERROR\n", len(ids))
			return nil
		}, &operator)
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 30*time.Minute, "age of the last update after which a job is stalled")
}
