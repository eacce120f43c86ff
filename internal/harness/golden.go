package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/edb/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// Snapshot renders the trace of a run as canonical JSON. The bytes are
// stable across runs of the same scenario.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = e.canonical()
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    trace,
	})
}

// AssertGolden compares the trace of result against
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
