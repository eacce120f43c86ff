package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/edb/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCommit builds a commit with minimal metadata.
func createTestCommit(ts int64, inserts, updates []ir.Object, deletes ...string) ir.Commit {
	return ir.Commit{
		CommitInfo: ir.CommitInfo{
			Timestamp: ts,
			Revision:  fmt.Sprintf("rev-%d", ts),
			Committer: "tester",
			Context:   "ctx",
		},
		Inserts: inserts,
		Updates: updates,
		Deletes: deletes,
	}
}

// mustWrite writes a commit and fails the test on error.
func mustWrite(t *testing.T, s *Store, c ir.Commit) ir.Commit {
	t.Helper()
	stored, err := s.WriteCommit(context.Background(), c)
	if err != nil {
		t.Fatalf("WriteCommit(%d) failed: %v", c.Timestamp, err)
	}
	return stored
}

func obj(oid string, pairs ...ir.IRPair) ir.Object {
	return ir.NewObject(oid, ir.NewIRObjectFromPairs(pairs...))
}
