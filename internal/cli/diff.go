package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <t1> <t2>",
		Short: "Compare the live state at two timestamps",
		Long: `Show how the live state at t1 became the live state at t2:

  + oid            added
  - oid            removed
  ~ oid [keys]     changed attributes`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			t1, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid timestamp t1", err)
			}
			t2, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid timestamp t2", err)
			}

			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			d, err := db.Diff(context.Background(), t1, t2)
			if err != nil {
				return fail(cmd, rootOpts, "diff failed", err)
			}
			return render(cmd, rootOpts, d, func(w io.Writer) {
				if d.IsEmpty() {
					fmt.Fprintf(w, "No changes between %d and %d.\n", t1, t2)
					return
				}
				for _, o := range d.Added {
					fmt.Fprintf(w, "+ %s\n", o.OID)
				}
				for _, o := range d.Removed {
					fmt.Fprintf(w, "- %s\n", o.OID)
				}
				for _, e := range d.Changed {
					fmt.Fprintf(w, "~ %s [%s]\n", e.OID, strings.Join(e.Keys, ", "))
				}
			})
		},
	}
	return cmd
}
