package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/edb/internal/edb"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DeterministicOptions returns the database options that make a run
// reproducible: timestamps 1, 2, 3, ... and revisions rev-1, rev-2, ...
func DeterministicOptions() []edb.Option {
	return []edb.Option{
		edb.WithClock(NewDeterministicClock()),
		edb.WithRevisionGenerator(edb.NewSequenceGenerator("rev")),
		edb.WithLogger(DiscardLogger()),
	}
}

// OpenDB opens a deterministic database in a temp directory and closes it
// when the test ends. It returns the database and its file path.
func OpenDB(t testing.TB, opts ...edb.Option) (*edb.Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edb.db")
	db, err := edb.Open(path, nil, append(DeterministicOptions(), opts...)...)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}
