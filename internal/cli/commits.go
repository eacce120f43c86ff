package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/ir"
)

// CommitsOptions holds flags for the commits command.
type CommitsOptions struct {
	*RootOptions
	Committer string
	Context   string
	From      int64
	To        int64
	Revision  string // show one commit with its object sets
}

// NewCommitsCommand creates the commits command.
func NewCommitsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commits",
		Short: "List commit metadata",
		Long: `List commits in timestamp order, filtered by committer, context and an
inclusive timestamp window. With --revision, show that one commit including
its inserts, updates and deletes.

Examples:
  edb commits --context cad
  edb commits --from 10 --to 20 --format json
  edb commits --revision 0192f3c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommits(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Committer, "committer", "", "only commits by this committer")
	cmd.Flags().StringVar(&opts.Context, "context", "", "only commits in this context")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "first commit timestamp")
	cmd.Flags().Int64Var(&opts.To, "to", 0, "last commit timestamp")
	cmd.Flags().StringVar(&opts.Revision, "revision", "", "show a single commit")
	return cmd
}

func runCommits(opts *CommitsOptions, cmd *cobra.Command) error {
	db, _, err := openDatabase(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if opts.Revision != "" {
		c, err := db.CommitByRevision(ctx, opts.Revision)
		if err != nil {
			return fail(cmd, opts.RootOptions, "commit lookup failed", err)
		}
		return render(cmd, opts.RootOptions, c, func(w io.Writer) {
			writeCommitInfo(w, c.CommitInfo)
			for _, o := range c.Inserts {
				fmt.Fprintf(w, "  + %s v%d\n", o.OID, o.Version)
			}
			for _, o := range c.Updates {
				fmt.Fprintf(w, "  ~ %s v%d\n", o.OID, o.Version)
			}
			for _, oid := range c.Deletes {
				fmt.Fprintf(w, "  - %s\n", oid)
			}
		})
	}

	infos, err := db.GetCommitInfos(ctx, ir.CommitQuery{
		Committer: opts.Committer,
		Context:   opts.Context,
		From:      opts.From,
		To:        opts.To,
	})
	if err != nil {
		return fail(cmd, opts.RootOptions, "commit query failed", err)
	}
	if infos == nil {
		infos = []ir.CommitInfo{}
	}
	return render(cmd, opts.RootOptions, infos, func(w io.Writer) {
		if len(infos) == 0 {
			fmt.Fprintln(w, "No commits.")
			return
		}
		for _, info := range infos {
			writeCommitInfo(w, info)
		}
	})
}

func writeCommitInfo(w io.Writer, info ir.CommitInfo) {
	fmt.Fprintf(w, "%d %s %s (%s)", info.Timestamp, info.Revision, info.Committer, info.Context)
	if info.ConnectorID != "" {
		fmt.Fprintf(w, " via %s+%s+%s", info.DomainID, info.ConnectorID, info.InstanceID)
	}
	if info.Comment != "" {
		fmt.Fprintf(w, " %q", info.Comment)
	}
	fmt.Fprintln(w)
}
