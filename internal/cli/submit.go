package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tigerroll/payroll-import/pkg/importer/core/application/usecase"
)

var submitEmail string

var submitCmd = &cobra.Command{
	Use:   "submit <file.xlsx>",
	Short: "Submit a spreadsheet for import",
	Long: `Submit a spreadsheet the same way the upload endpoint does. The command
returns once every chunk has been published; the workers import the rows.

Examples:
  payroll-import submit nomina_marzo.xlsx --email rrhh@empresa.com`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitEmail, "email", "e", "", "address notified when the import ends")
	_ = submitCmd.MarkFlagRequired("email")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var launcher usecase.ImportLauncher
	return withApp(cmd.Context(), func() error {
		resp, err := launcher.StartImport(cmd.Context(), usecase.UploadRequest{
			Filename: filepath.Base(path),
			Content:  f,
			Size:     info.Size(),
			Email:    submitEmail,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	}, &launcher)
}
