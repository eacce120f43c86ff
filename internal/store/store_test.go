package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)

		var count int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM commits").Scan(&count))
		s.Close()
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestPragmas_Options(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithBusyTimeout(250*time.Millisecond), WithSynchronous("full"))
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("synchronous", "2"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "250"))
}

func TestOpen_InvalidSynchronous(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), WithSynchronous("sometimes"))
	assert.ErrorContains(t, err, "synchronous mode")
}

func TestSchema_Tables(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t,
		[]string{"timestamp", "revision", "parent", "committer", "context", "comment", "domain_id", "connector_id", "instance_id", "engine_version"},
		getTableColumns(t, s.db, "commits"))
	assert.Equal(t,
		[]string{"oid", "timestamp", "op", "version", "deleted", "attrs", "digest"},
		getTableColumns(t, s.db, "objects"))
	assert.Equal(t,
		[]string{"oid", "timestamp", "key", "type", "value"},
		getTableColumns(t, s.db, "entries"))
}

func TestSchema_AppendOnly(t *testing.T) {
	s := createTestStore(t)
	mustWrite(t, s, createTestCommit(1, []ir.Object{obj("A", ir.O("v", ir.IRInt(1)))}, nil))

	_, err := s.db.Exec("UPDATE commits SET committer = 'mallory'")
	assert.ErrorContains(t, err, "append-only")

	_, err = s.db.Exec("DELETE FROM objects")
	assert.ErrorContains(t, err, "append-only")
}

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
	assert.Contains(t, getTableIndexes(t, s.db, "objects"), "idx_objects_tombstones")
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	db.Close()

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
	assert.Contains(t, getTableIndexes(t, s.db, "objects"), "idx_objects_tombstones")
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		require.NoError(t, rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk))
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	require.NoError(t, err)
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	return indexes
}
