package cli

import (
	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

var (
	statusShowErrors bool
	statsRecent      int
)

type statusOutput struct {
	*model.JobStatusView
	RowErrors []model.RowError `json:"rowErrors,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Show the progress of an import job",
	Example: `  payroll-import status 4f6c2a9e-1d7b-4c55-9a61-0b3e2f8d7c10
  payroll-import status 4f6c2a9e-1d7b-4c55-9a61-0b3e2f8d7c10 --errors`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var explorer usecase.ImportExplorer
		return withApp(cmd.Context(), func() error {
			view, err := explorer.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := statusOutput{JobStatusView: view}
			if statusShowErrors {
				if out.RowErrors, err = explorer.ListErrors(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		}, &explorer)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count jobs per status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var explorer usecase.ImportExplorer
		return withApp(cmd.Context(), func() error {
			stats, err := explorer.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if statsRecent <= 0 {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			jobs, err := explorer.RecentJobs(cmd.Context(), statsRecent)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"stats":  stats,
				"recent": jobs,
			})
		}, &explorer)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowErrors, "errors", false, "also list the row errors of the job")
	statsCmd.Flags().IntVar(&statsRecent, "recent", 0, "also list the N most recent jobs")
}
