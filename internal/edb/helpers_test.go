package edb

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
)

// newTestDB opens a database on a temp file with a logical clock starting at
// 0 and revisions rev-1, rev-2, ...
func newTestDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	base := []Option{
		WithClock(NewLogicalClock(0)),
		WithRevisionGenerator(NewSequenceGenerator("rev")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	db, err := Open(filepath.Join(t.TempDir(), "edb.db"), nil, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func obj(oid string, pairs ...ir.IRPair) ir.Object {
	return ir.NewObject(oid, ir.NewIRObjectFromPairs(pairs...))
}

func kv(oid, k, v string) ir.Object {
	return obj(oid, ir.O(k, ir.IRString(v)))
}

// commitOps builds and commits one commit, failing the test on error.
func commitOps(t *testing.T, db *Database, inserts, updates []ir.Object, deletes ...string) int64 {
	t.Helper()
	c := db.CreateCommit("tester", "ctx")
	for _, o := range inserts {
		require.NoError(t, c.Insert(o))
	}
	for _, o := range updates {
		require.NoError(t, c.Update(o))
	}
	for _, oid := range deletes {
		require.NoError(t, c.Delete(oid))
	}
	ts, err := db.Commit(context.Background(), c)
	require.NoError(t, err)
	return ts
}

func oids(objs []ir.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.OID
	}
	return out
}
