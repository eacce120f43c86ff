package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/ir"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:   "get <oid>...",
		Short: "Show the live version of objects",
		Long: `Show the current version of each OID, or the version that was live at
the timestamp given with --at. Fails if any OID is not live.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			var objs []ir.Object
			if at > 0 {
				for _, oid := range args {
					obj, err := db.GetObjectAt(ctx, oid, at)
					if err != nil {
						return fail(cmd, rootOpts, "get failed", err)
					}
					objs = append(objs, obj)
				}
			} else {
				objs, err = db.GetObjects(ctx, args)
				if err != nil {
					return fail(cmd, rootOpts, "get failed", err)
				}
			}
			return render(cmd, rootOpts, objs, func(w io.Writer) {
				for _, obj := range objs {
					writeObject(w, obj)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "read as of this commit timestamp")
	return cmd
}

// NewHeadCommand creates the head command.
func NewHeadCommand(rootOpts *RootOptions) *cobra.Command {
	var at int64

	cmd := &cobra.Command{
		Use:           "head",
		Short:         "List every live object",
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
			var objs []ir.Object
			if cmd.Flags().Changed("at") {
				objs, err = db.HeadAt(ctx, at)
			} else {
				objs, err = db.Head(ctx)
			}
			if err != nil {
				return fail(cmd, rootOpts, "head failed", err)
			}
			return render(cmd, rootOpts, objs, func(w io.Writer) {
				if len(objs) == 0 {
					fmt.Fprintln(w, "No live objects.")
					return
				}
				for _, obj := range objs {
					writeObject(w, obj)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&at, "at", 0, "list the state as of this commit timestamp")
	return cmd
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var from, to int64

	cmd := &cobra.Command{
		Use:   "history <oid>",
		Short: "List every version of an object",
		Long: `List every stored version of an OID, tombstones included, oldest first.
--from and --to bound the commit timestamps (inclusive, 0 for open).`,
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
			var versions []ir.Object
			if from > 0 || to > 0 {
				versions, err = db.HistoryRange(ctx, args[0], from, to)
			} else {
				versions, err = db.History(ctx, args[0])
			}
			if err != nil {
				return fail(cmd, rootOpts, "history failed", err)
			}
			return render(cmd, rootOpts, versions, func(w io.Writer) {
				for _, obj := range versions {
					writeObject(w, obj)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "first commit timestamp")
	cmd.Flags().Int64Var(&to, "to", 0, "last commit timestamp")
	return cmd
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	var from, to int64

	cmd := &cobra.Command{
		Use:           "log <oid>",
		Short:         "List the changes of an object with their commits",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.Log(context.Background(), args[0], from, to)
			if err != nil {
				return fail(cmd, rootOpts, "log failed", err)
			}
			return render(cmd, rootOpts, entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%d %-6s %s by %s (%s)", e.Timestamp, e.Change, e.Commit.Revision, e.Commit.Committer, e.Commit.Context)
					if e.Commit.Comment != "" {
						fmt.Fprintf(w, " %q", e.Commit.Comment)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "first commit timestamp")
	cmd.Flags().Int64Var(&to, "to", 0, "last commit timestamp (0 for open)")
	return cmd
}

// NewResurrectedCommand creates the resurrected command.
func NewResurrectedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resurrected",
		Short:         "List OIDs that were deleted and later inserted again",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openDatabase(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			oids, err := db.ResurrectedOIDs(context.Background())
			if err != nil {
				return fail(cmd, rootOpts, "resurrected failed", err)
			}
			if oids == nil {
				oids = []string{}
			}
			return render(cmd, rootOpts, oids, func(w io.Writer) {
				for _, oid := range oids {
					fmt.Fprintln(w, oid)
				}
			})
		},
	}
	return cmd
}

// writeObject prints one object as "oid v<version> @<timestamp> k=v ...".
func writeObject(w io.Writer, obj ir.Object) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s v%d @%d", obj.OID, obj.Version, obj.Timestamp)
	if obj.Deleted {
		b.WriteString(" (deleted)")
	}
	for _, k := range obj.Attributes.SortedKeys() {
		fmt.Fprintf(&b, " %s=%s", k, ir.FormatValue(obj.Attributes[k]))
	}
	fmt.Fprintln(w, b.String())
}
