package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/edb/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string // glob over scenario names
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult summarizes a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run harness scenarios",
		Long: `Run YAML scenarios against fresh in-memory databases.

Each scenario's steps run with a logical clock and sequential revisions,
so its trace is reproducible. The trace is compared with
golden/<name>.golden next to the scenario file when one exists, and the
scenario's assertions are evaluated against the final state.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  edb test ./scenarios
  edb test ./scenarios --filter "revert-*"
  edb test ./scenarios --update
  edb test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	text := opts.Format != "json"
	if len(files) == 0 && text {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, file := range files {
		r := runScenario(ctx, file, opts.Update)
		if text {
			printScenario(cmd.OutOrStdout(), r, opts.Update)
		}
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if text {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTest Summary: %d passed, %d failed, %d total\n",
			result.Passed, result.Failed, result.Total)
	} else if err := writeTestJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	if text {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ All scenarios passed")
	}
	return nil
}

// findScenarioFiles lists the .yaml and .yml files under dir whose base
// name matches filter. golden/ directories below dir are skipped.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", filter, err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && d.Name() == "golden" && path != dir:
			return filepath.SkipDir
		case d.IsDir():
			return nil
		}

		name, ok := scenarioName(path)
		if !ok {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern %q: %w", filter, err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// scenarioName returns the file name without its YAML extension.
func scenarioName(path string) (string, bool) {
	base := filepath.Base(path)
	for _, ext := range []string{".yaml", ".yml"} {
		if name, ok := strings.CutSuffix(base, ext); ok {
			return name, true
		}
	}
	return "", false
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	name, ok := scenarioName(scenarioFile)
	if !ok {
		name = strings.TrimSuffix(filepath.Base(scenarioFile), filepath.Ext(scenarioFile))
	}
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// runScenario runs one scenario file. The trace is written to its golden
// file when update is set and compared with it otherwise. A scenario
// without a golden file is judged by its assertions alone.
func runScenario(ctx context.Context, file string, update bool) ScenarioResult {
	failed := func(name, format string, args ...any) ScenarioResult {
		return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
	}

	s, err := harness.LoadScenario(file)
	if err != nil {
		return failed(filepath.Base(file), "failed to load scenario: %v", err)
	}
	result, err := harness.Run(ctx, s)
	if err != nil {
		return failed(s.Name, "execution failed: %v", err)
	}
	trace, err := harness.Snapshot(s.Name, result)
	if err != nil {
		return failed(s.Name, "failed to snapshot trace: %v", err)
	}

	golden := goldenFilePath(file)
	if update {
		if err := writeGolden(golden, trace); err != nil {
			return failed(s.Name, "failed to update golden file: %v", err)
		}
		return ScenarioResult{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
	}

	want, err := os.ReadFile(golden)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return failed(s.Name, "golden comparison failed: %v", err)
	case !bytes.Equal(bytes.TrimSpace(want), trace):
		return ScenarioResult{
			Name:   s.Name,
			Errors: append([]string{"trace does not match golden file"}, result.Errors...),
		}
	}
	return ScenarioResult{Name: s.Name, Pass: result.Pass, Errors: result.Errors}
}

func writeGolden(path string, trace []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, trace, 0o644)
}

func printScenario(w io.Writer, r ScenarioResult, updated bool) {
	switch {
	case r.Pass && updated:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", r.Name)
	case r.Pass:
		fmt.Fprintf(w, "✓ %s\n", r.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", r.Name)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// writeTestJSON writes the run as one response. Failed scenarios turn the
// status into "error" with code E_TEST_FAILED; the data is kept either way.
func writeTestJSON(w io.Writer, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(response)
}
