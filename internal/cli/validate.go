package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/model"
)

// ModelInfo describes one compiled model.
type ModelInfo struct {
	Name   string            `json:"name"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
}

// ValidationError is one schema error with its source position.
type ValidationError struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Models []ModelInfo       `json:"models"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <models-dir>",
		Short: "Validate CUE model schemas",
		Long: `Load every .cue file of a directory and check the model declarations:
each model needs a key and typed fields, and the key must be a field.

  model: Part: {
  	key: "number"
  	fields: { number: "string", name: "string", mass: "int64" }
  }`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	if _, err := os.Stat(dir); err != nil {
		if fmtErr := formatter.Error("E_NOT_FOUND", fmt.Sprintf("models directory not found: %s", dir), nil); fmtErr != nil {
			return fmtErr
		}
		return WrapExitError(ExitCommandError, "models directory not found", err)
	}

	registry, errs := model.LoadDir(dir)
	result := ValidationResult{Valid: len(errs) == 0, Models: []ModelInfo{}}
	for _, name := range registry.Names() {
		s, _ := registry.Get(name)
		formatter.VerboseLog("Validated model: %s", name)
		info := ModelInfo{Name: s.Name, Key: s.Key, Fields: make(map[string]string, len(s.Fields))}
		for field, t := range s.Fields {
			info.Fields[field] = string(t)
		}
		result.Models = append(result.Models, info)
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, toValidationError(err))
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, m := range result.Models {
			fmt.Fprintf(w, "✓ %s (key %s, %d fields)\n", m.Name, m.Key, len(m.Fields))
		}
		for _, e := range result.Errors {
			if e.File != "" {
				fmt.Fprintf(w, "✗ %s:%d: %s\n", e.File, e.Line, e.Message)
			} else {
				fmt.Fprintf(w, "✗ %s\n", e.Message)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d model error(s)", len(result.Errors)))
	}
	return nil
}

func toValidationError(err error) ValidationError {
	ve := ValidationError{Message: err.Error()}
	var cErr *model.CompileError
	if errors.As(err, &cErr) && cErr.Pos.IsValid() {
		ve.File = cErr.Pos.Filename()
		ve.Line = cErr.Pos.Line()
	}
	return ve
}
