package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
)

var (
	pauseCmd  = newControlCmd("pause", "Pause a running import job", usecase.ImportOperator.Pause)
	resumeCmd = newControlCmd("resume", "Resume a paused import job", usecase.ImportOperator.Resume)
	cancelCmd = newControlCmd("cancel", "Cancel an import job", usecase.ImportOperator.Cancel)
)

type controlFunc func(usecase.ImportOperator, context.Context, string) (*model.Job, error)

func newControlCmd(verb, short string, apply controlFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <jobId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var operator usecase.ImportOperator
			return withApp(cmd.Context(), func() error {
				job, err := apply(operator, cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("%s %s: %w", verb, args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, job.Status)
				return nil
			}, &operator)
		},
	}
}
