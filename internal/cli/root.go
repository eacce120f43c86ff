package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Database    string // overrides database.path
	MetricsFile string // Prometheus text dump written after the command

	cfg    config.Config
	loaded bool
	gather prometheus.Gatherer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the edb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "edb",
		Short: "EDB - Engineering Database",
		Long: `A versioned object store for engineering data.

Every change lands in an immutable commit with a strictly increasing
timestamp, so any past state can be read back, diffed and reverted.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			_, err := opts.Config()
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.writeMetrics()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./edb.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the SQLite database (overrides database.path)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	// Write commands
	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewRevertCommand(opts))

	// Read commands
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewHeadCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewCommitsCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewResurrectedCommand(opts))

	// Tooling
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config loads the configuration once. --db and --verbose override the
// loaded values.
func (o *RootOptions) Config() (config.Config, error) {
	if o.loaded {
		return o.cfg, nil
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.cfg = cfg
	o.loaded = true
	return cfg, nil
}

func (o *RootOptions) writeMetrics() error {
	if o.MetricsFile == "" || o.gather == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(o.MetricsFile, o.gather); err != nil {
		return WrapExitError(ExitCommandError, "failed to write metrics", err)
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
