package harness

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/roach88/edb/internal/edb"
	"github.com/roach88/edb/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions runs every assertion and returns one message per failure.
func EvaluateAssertions(ctx context.Context, db *edb.Database, assertions []Assertion) []string {
	var msgs []string
	for i, a := range assertions {
		if err := evaluate(ctx, db, a); err != nil {
			msgs = append(msgs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return msgs
}

func evaluate(ctx context.Context, db *edb.Database, a Assertion) error {
	switch a.Type {
	case AssertHeadCount:
		return assertHeadCount(ctx, db, a)
	case AssertHeadContains:
		return assertHeadContains(ctx, db, a)
	case AssertHistoryLength:
		return assertHistoryLength(ctx, db, a)
	case AssertDiffChanged:
		return assertDiffChanged(ctx, db, a)
	case AssertResurrected:
		return assertResurrected(ctx, db, a)
	case AssertQueryCount:
		return assertQueryCount(ctx, db, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func headAt(ctx context.Context, db *edb.Database, at int64) ([]ir.Object, error) {
	if at == 0 {
		return db.Head(ctx)
	}
	return db.HeadAt(ctx, at)
}

func assertHeadCount(ctx context.Context, db *edb.Database, a Assertion) error {
	objs, err := headAt(ctx, db, a.At)
	if err != nil {
		return err
	}
	if len(objs) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d live objects", a.Count),
			Actual:   fmt.Sprintf("%d %v", len(objs), oidsOf(objs)),
		}
	}
	return nil
}

// assertHeadContains checks that the OID is live and carries the expected
// attributes. Other attributes are ignored.
func assertHeadContains(ctx context.Context, db *edb.Database, a Assertion) error {
	at := a.At
	if at == 0 {
		at = math.MaxInt64
	}
	obj, err := db.GetObjectAt(ctx, a.OID, at)
	if edb.IsNotFound(err) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s to be live", a.OID), Actual: "not live"}
	}
	if err != nil {
		return err
	}

	for _, k := range sortedKeys(a.Attributes) {
		got, ok := obj.Attributes[k]
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%s.%s", a.OID, k), Actual: "attribute missing"}
		}
		want, err := ir.Coerce(a.Attributes[k], ir.TypeOf(got))
		if err != nil || !ir.Equal(want, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.OID, k, a.Attributes[k]),
				Actual:   ir.FormatValue(got),
			}
		}
	}
	return nil
}

func assertHistoryLength(ctx context.Context, db *edb.Database, a Assertion) error {
	versions, err := db.History(ctx, a.OID)
	if err != nil {
		return err
	}
	if len(versions) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d versions of %s", a.Count, a.OID),
			Actual:   fmt.Sprintf("%d", len(versions)),
		}
	}
	return nil
}

// assertDiffChanged compares the OID sets of a diff. An omitted list means
// the diff must have no entries of that kind.
func assertDiffChanged(ctx context.Context, db *edb.Database, a Assertion) error {
	d, err := db.Diff(ctx, a.From, a.To)
	if err != nil {
		return err
	}
	changed := make([]string, len(d.Changed))
	for i, e := range d.Changed {
		changed[i] = e.OID
	}

	for _, c := range []struct {
		kind      string
		want, got []string
	}{
		{"added", a.Added, oidsOf(d.Added)},
		{"removed", a.Removed, oidsOf(d.Removed)},
		{"changed", a.Changed, changed},
	} {
		if !sameSet(c.want, c.got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s %v in (%d, %d]", c.kind, sorted(c.want), a.From, a.To),
				Actual:   fmt.Sprintf("%v", sorted(c.got)),
			}
		}
	}
	return nil
}

func assertResurrected(ctx context.Context, db *edb.Database, a Assertion) error {
	oids, err := db.ResurrectedOIDs(ctx)
	if err != nil {
		return err
	}
	if !sameSet(a.OIDs, oids) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", sorted(a.OIDs)),
			Actual:   fmt.Sprintf("%v", oids),
		}
	}
	return nil
}

func assertQueryCount(ctx context.Context, db *edb.Database, a Assertion) error {
	params, err := ir.ObjectFromPlain(a.Params)
	if err != nil {
		return fmt.Errorf("query params: %w", err)
	}
	objs, err := db.QueryRequest(ctx, ir.QueryRequest{Params: params, Timestamp: a.At})
	if err != nil {
		return err
	}
	if len(objs) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d matches for %s", a.Count, formatParams(params)),
			Actual:   fmt.Sprintf("%d %v", len(objs), oidsOf(objs)),
		}
	}
	return nil
}

func oidsOf(objs []ir.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.OID
	}
	return out
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

func sameSet(a, b []string) bool {
	return slices.Equal(sorted(a), sorted(b))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func formatParams(params ir.IRObject) string {
	parts := make([]string, 0, len(params))
	for _, k := range params.SortedKeys() {
		parts = append(parts, k+"="+ir.FormatValue(params[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
