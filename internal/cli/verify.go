package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/store"
)

// VerifyResult combines the replay check with store row counts.
type VerifyResult struct {
	OK     bool             `json:"ok"`
	Report edb.VerifyReport `json:"report"`
	Stats  store.Stats      `json:"stats"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Rebuild the head from the commit log and compare",
		Long: `Replay every commit in timestamp order and compare the result with the
stored head. Also checks object digests and timestamp order.

Exit codes:
  0 - Replayed state matches the head
  1 - Mismatches found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			report, err := db.Verify(ctx)
			if err != nil {
				return fail(cmd, rootOpts, "verify failed", err)
			}
			var stats store.Stats
			err = db.Store().View(ctx, func(r *store.Reader) error {
				stats, err = r.Stats(ctx)
				return err
			})
			if err != nil {
				return fail(cmd, rootOpts, "verify failed", err)
			}

			result := VerifyResult{OK: report.OK(), Report: report, Stats: stats}
			if err := render(cmd, rootOpts, result, func(w io.Writer) {
				fmt.Fprintf(w, "commits: %d (%d..%d), versions: %d, oids: %d, live: %d\n",
					stats.Commits, stats.FirstCommit, stats.LastCommit, stats.Versions, stats.OIDs, report.Objects)
				for _, m := range report.Mismatches {
					fmt.Fprintf(w, "✗ %s\n", m)
				}
				if result.OK {
					fmt.Fprintf(w, "✓ head matches replay (%s)\n", report.HeadDigest)
				} else {
					fmt.Fprintf(w, "✗ head digest %s, replay digest %s\n", report.HeadDigest, report.ReplayDigest)
				}
			}); err != nil {
				return err
			}

			if !result.OK {
				return NewExitError(ExitFailure, "verification failed")
			}
			return nil
		},
	}
	return cmd
}
