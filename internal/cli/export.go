package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "export <out.xlsx>",
		Short: "Write the live state to a spreadsheet",
		Long: `Write the live state as of --at (default: the latest commit) to an XLSX
workbook with one sheet per domain and one row per object.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			if at == 0 {
				at, err = db.CurrentTimestamp(ctx)
				if err != nil {
					return fail(cmd, rootOpts, "export failed", err)
				}
			}

			f, err := os.Create(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create output file", err)
			}
			summary, err := export.HeadAt(ctx, db, at, f)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fail(cmd, rootOpts, "export failed", err)
			}

			return render(cmd, rootOpts, summary, func(w io.Writer) {
				fmt.Fprintf(w, "exported state at %d to %s\n", summary.Timestamp, args[0])
				sheets := make([]string, 0, len(summary.Sheets))
				for name := range summary.Sheets {
					sheets = append(sheets, name)
				}
				slices.Sort(sheets)
				for _, name := range sheets {
					fmt.Fprintf(w, "  %s: %d rows\n", name, summary.Sheets[name])
				}
			})
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "export the state as of this commit timestamp")
	return cmd
}
