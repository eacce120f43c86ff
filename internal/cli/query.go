package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/edb/internal/ir"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	At       int64
	Fold     bool
	Wildcard bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <key=value>...",
		Short: "Find live objects by attribute values",
		Long: `Find objects whose attributes match every key=value pair.

Values are typed like YAML scalars: 40 is an int64, true a bool, anything
else a string. Force a type with key:type=value, e.g. number:string=0042.

Examples:
  edb query name=bracket
  edb query name=brack% --wildcard
  edb query material=STEEL --fold --at 12`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.At, "at", 0, "query the state as of this commit timestamp")
	cmd.Flags().BoolVar(&opts.Fold, "fold", false, "compare strings case-insensitively")
	cmd.Flags().BoolVar(&opts.Wildcard, "wildcard", false, "treat % and _ in string values as wildcards")
	return cmd
}

func runQuery(opts *QueryOptions, args []string, cmd *cobra.Command) error {
	params, err := parseParams(args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	db, _, err := openDatabase(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer db.Close()

	objs, err := db.QueryRequest(context.Background(), ir.QueryRequest{
		Params:          params,
		Timestamp:       opts.At,
		CaseInsensitive: opts.Fold,
		Wildcard:        opts.Wildcard,
	})
	if err != nil {
		return fail(cmd, opts.RootOptions, "query failed", err)
	}
	if objs == nil {
		objs = []ir.Object{}
	}
	return render(cmd, opts.RootOptions, objs, func(w io.Writer) {
		for _, obj := range objs {
			writeObject(w, obj)
		}
		fmt.Fprintf(w, "%d match(es)\n", len(objs))
	})
}

// parseParams turns key=value and key:type=value arguments into typed
// query parameters.
func parseParams(args []string) (map[string]ir.IRValue, error) {
	params := make(map[string]ir.IRValue, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%q: want key=value", arg)
		}

		if name, typ, typed := strings.Cut(key, ":"); typed {
			t, err := ir.ParseValueType(typ)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", arg, err)
			}
			v, err := ir.Coerce(raw, t)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", arg, err)
			}
			params[name] = v
			continue
		}

		var plain any
		if err := yaml.Unmarshal([]byte(raw), &plain); err != nil || plain == nil {
			plain = raw
		}
		if _, isMap := plain.(map[string]any); isMap {
			plain = raw
		}
		if _, isList := plain.([]any); isList {
			plain = raw
		}
		v, err := ir.FromPlain(plain)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		params[key] = v
	}
	return params, nil
}
