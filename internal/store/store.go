package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added partial index on tombstones for resurrection queries
const currentSchemaVersion = 1

// DefaultChainCacheSize is the number of per-OID version chains kept in memory.
const DefaultChainCacheSize = 4096

// ErrNotFound is returned when a requested object, version or commit does not exist.
var ErrNotFound = errors.New("not found")

// ErrTimestampOrder is returned when a commit timestamp does not exceed the
// latest stored commit timestamp.
var ErrTimestampOrder = errors.New("commit timestamp not strictly increasing")

// Store provides durable, append-only storage for EDB commits and object versions.
// Uses SQLite with WAL mode. All reads on Store run outside a transaction; use
// View for multi-statement reads that must observe a single snapshot.
type Store struct {
	Reader
	db     *sql.DB
	chains *chainIndex
}

// Option configures a Store.
type Option func(*options)

type options struct {
	chainCacheSize int
	busyTimeout    time.Duration
	synchronous    string
}

func defaultOptions() options {
	return options{
		chainCacheSize: DefaultChainCacheSize,
		busyTimeout:    5 * time.Second,
		synchronous:    "NORMAL",
	}
}

// WithChainCacheSize sets the number of per-OID version chains cached in memory.
func WithChainCacheSize(n int) Option {
	return func(o *options) {
		o.chainCacheSize = n
	}
}

// WithBusyTimeout sets how long a connection waits on a locked database
// file before failing.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithSynchronous sets the SQLite synchronous mode: OFF, NORMAL or FULL.
func WithSynchronous(mode string) Option {
	return func(o *options) {
		o.synchronous = strings.ToUpper(mode)
	}
}

// pragmas lists the connection settings applied on open, in order.
func (o options) pragmas() ([][2]string, error) {
	switch o.synchronous {
	case "OFF", "NORMAL", "FULL":
	default:
		return nil, fmt.Errorf("synchronous mode %q: want OFF, NORMAL or FULL", o.synchronous)
	}
	return [][2]string{
		{"journal_mode", "WAL"},
		{"synchronous", o.synchronous},
		{"busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10)},
		{"foreign_keys", "ON"},
	}, nil
}

// Open creates or opens the SQLite database at path and brings its schema
// up to date. Commits are durable once WAL-synced; readers never block the
// writer. Opening an existing database is safe and changes nothing.
func Open(path string, opts ...Option) (_ *Store, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	pragmas, err := o.pragmas()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// SQLite supports one writer at a time. A single connection also gives
	// every transaction a consistent view of the log.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p[0], p[1])); err != nil {
			return nil, fmt.Errorf("pragma %s: %w", p[0], err)
		}
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	chains, err := newChainIndex(o.chainCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain index: %w", err)
	}

	return &Store{
		Reader: Reader{q: db, chains: chains},
		db:     db,
		chains: chains,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying connection pool. Writes through it bypass the
// append-only checks of WriteCommit.
func (s *Store) DB() *sql.DB {
	return s.db
}

// View runs fn inside a single transaction so that every read inside fn
// observes the same committed state.
func (s *Store) View(ctx context.Context, fn func(r *Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin view: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Reader{q: tx, chains: s.chains}); err != nil {
		return err
	}
	return tx.Commit()
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds a partial index over tombstones.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_objects_tombstones
		ON objects(oid, timestamp) WHERE deleted = 1
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
