package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/pkg/importer/component/export"
)

var exportOutput string

var exportErrorsCmd = &cobra.Command{
	Use:   "export-errors <jobId>",
	Short: "Export the row errors of a job as Parquet",
	Long: `Write the row errors of a job as a Parquet file. Without --output the file is
uploaded to the storage configured under importer.export.

Examples:
  payroll-import export-errors 4f6c2a9e-1d7b-4c55-9a61-0b3e2f8d7c10
  payroll-import export-errors 4f6c2a9e-1d7b-4c55-9a61-0b3e2f8d7c10 -o errors.parquet`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := args[0]
		var exporter *export.ErrorExporter
		return withApp(cmd.Context(), func() error {
			if exportOutput == "" {
				report, err := exporter.Export(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}

			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOutput, err)
			}
			rows, err := exporter.Write(cmd.Context(), jobID, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d row error(s) written to %s\n", rows, exportOutput)
			return nil
		}, &exporter)
	},
}

func init() {
	exportErrorsCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this local file instead of the export storage")
}
