package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/edb/internal/event"
	"github.com/roach88/edb/internal/ir"
)

// CommitFile is the YAML form of one commit.
type CommitFile struct {
	Committer  string            `yaml:"committer"`
	Context    string            `yaml:"context"`
	Comment    string            `yaml:"comment,omitempty"`
	Connector  string            `yaml:"connector,omitempty"`
	ExpectHead string            `yaml:"expect_head,omitempty"`
	Inserts    []event.ObjectDoc `yaml:"inserts,omitempty"`
	Updates    []event.ObjectDoc `yaml:"updates,omitempty"`
	Deletes    []string          `yaml:"deletes,omitempty"`
}

// CommitResult is the output of a successful commit or revert.
type CommitResult struct {
	Timestamp int64    `json:"timestamp"`
	Revision  string   `json:"revision"`
	OIDs      []string `json:"oids"`
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit <file.yaml>",
		Short: "Apply a commit file",
		Long: `Apply the inserts, updates and deletes of a YAML commit file as one commit.

  committer: alice
  context: cad
  comment: initial parts
  inserts:
    - oid: P-100
      attributes: { name: bracket, mass: 40 }
  deletes: [P-099]

Objects may name a model instead of an oid when models.dir is configured
and connector is set; the oid is then derived from the model key.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCommit(opts *RootOptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read commit file", err)
	}
	var file CommitFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return WrapExitError(ExitCommandError, "failed to parse commit file", err)
	}

	registry, err := loadModels(opts)
	if err != nil {
		return err
	}
	var conv event.Converter
	if registry != nil {
		conv = registry
	}

	inserts, err := event.ConvertObjects(conv, file.Connector, file.Inserts)
	if err != nil {
		return fail(cmd, opts, "invalid inserts", err)
	}
	updates, err := event.ConvertObjects(conv, file.Connector, file.Updates)
	if err != nil {
		return fail(cmd, opts, "invalid updates", err)
	}

	db, _, err := openDatabase(cmd, opts)
	if err != nil {
		return err
	}
	defer db.Close()

	c := db.CreateCommit(file.Committer, file.Context)
	if file.Connector != "" {
		conn, err := ir.ParseConnectorID(file.Connector)
		if err != nil {
			return fail(cmd, opts, "invalid connector", err)
		}
		c.SetConnector(conn)
	}
	c.SetComment(file.Comment)
	if file.ExpectHead != "" {
		c.ExpectHead(file.ExpectHead)
	}
	for _, obj := range inserts {
		if err := c.Insert(obj); err != nil {
			return fail(cmd, opts, "commit rejected", err)
		}
	}
	for _, obj := range updates {
		if err := c.Update(obj); err != nil {
			return fail(cmd, opts, "commit rejected", err)
		}
	}
	for _, oid := range file.Deletes {
		if err := c.Delete(oid); err != nil {
			return fail(cmd, opts, "commit rejected", err)
		}
	}

	ts, err := db.Commit(context.Background(), c)
	if err != nil {
		return fail(cmd, opts, "commit rejected", err)
	}
	stored := c.Stored()
	result := CommitResult{Timestamp: ts, Revision: stored.Revision, OIDs: stored.OIDs()}

	return render(cmd, opts, result, func(w io.Writer) {
		fmt.Fprintf(w, "committed %s at %d (%d objects)\n", result.Revision, result.Timestamp, len(result.OIDs))
	})
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	var committer string

	cmd := &cobra.Command{
		Use:   "revert <revision>",
		Short: "Undo a commit with a new commit",
		Long: `Write a new commit that restores every object touched by the given
revision to its state just before that revision. History is never rewritten.`,
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
			ts, err := db.Revert(ctx, args[0], committer)
			if err != nil {
				return fail(cmd, rootOpts, "revert failed", err)
			}
			c, err := db.GetCommit(ctx, ts)
			if err != nil {
				return fail(cmd, rootOpts, "failed to read revert commit", err)
			}
			result := CommitResult{Timestamp: ts}
			if c != nil {
				result.Revision = c.Revision
				result.OIDs = c.OIDs()
			}
			return render(cmd, rootOpts, result, func(w io.Writer) {
				fmt.Fprintf(w, "reverted %s as %s at %d (%d objects)\n", args[0], result.Revision, result.Timestamp, len(result.OIDs))
			})
		},
	}

	cmd.Flags().StringVar(&committer, "committer", "edb", "committer of the revert commit")
	return cmd
}
