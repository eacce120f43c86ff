package edb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/metrics"
	"github.com/roach88/edb/internal/queryir"
	"github.com/roach88/edb/internal/store"
)

// Database is the engineering database: a commit-based, append-only object
// store with point-in-time reads.
//
// Thread-safety model:
//   - Commit: safe from any goroutine; commits are serialized on one mutex
//     and timestamps are assigned only inside it
//   - reads: safe from any goroutine; multi-statement reads run in one
//     read transaction and observe either all of a commit or none of it
type Database struct {
	store     *store.Store
	mu        sync.Mutex // commit serialization point
	clock     Clock
	revisions RevisionGenerator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	hooks     Hooks

	revisionCheck bool
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) { d.logger = l }
}

// WithMetrics records commit metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Database) { d.metrics = m }
}

// WithClock sets the timestamp source. Defaults to WallClock.
func WithClock(c Clock) Option {
	return func(d *Database) { d.clock = c }
}

// WithRevisionGenerator sets the revision id source. Defaults to UUIDv7Generator.
func WithRevisionGenerator(g RevisionGenerator) Option {
	return func(d *Database) { d.revisions = g }
}

// WithHooks appends commit hooks.
func WithHooks(h Hooks) Option {
	return func(d *Database) {
		d.hooks.Begin = append(d.hooks.Begin, h.Begin...)
		d.hooks.Pre = append(d.hooks.Pre, h.Pre...)
		d.hooks.Error = append(d.hooks.Error, h.Error...)
		d.hooks.Post = append(d.hooks.Post, h.Post...)
	}
}

// WithRevisionCheck enables the expected-head check (Commit.ExpectHead) and
// installs ConflictCheckHook.
func WithRevisionCheck(enabled bool) Option {
	return func(d *Database) { d.revisionCheck = enabled }
}

// New creates a Database on an open store.
func New(s *store.Store, opts ...Option) *Database {
	d := &Database{
		store:     s,
		clock:     WallClock{},
		revisions: UUIDv7Generator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.revisionCheck {
		d.hooks.Pre = append([]PreCommitHook{ConflictCheckHook{}}, d.hooks.Pre...)
	}
	return d
}

// Open opens the store at path and creates a Database on it.
func Open(path string, storeOpts []store.Option, opts ...Option) (*Database, error) {
	s, err := store.Open(path, storeOpts...)
	if err != nil {
		return nil, &Error{Code: ErrCodeBackend, Message: "open store", Err: err}
	}
	return New(s, opts...), nil
}

// Close closes the underlying store.
func (d *Database) Close() error {
	return d.store.Close()
}

// Store returns the underlying store.
func (d *Database) Store() *store.Store {
	return d.store
}

// CreateCommit starts a new commit in the BUILDING state.
func (d *Database) CreateCommit(committer, commitCtx string) *Commit {
	return newCommit(committer, commitCtx)
}

// Commit validates and persists c atomically and returns its timestamp.
//
// Hooks run in order: begin hooks, then (under the commit lock) validation
// and pre-commit hooks, then the write, then post-commit hooks. On failure c
// is FAILED and nothing of it is visible. Once the write starts it is not
// cancelled by ctx.
func (d *Database) Commit(ctx context.Context, c *Commit) (int64, error) {
	if c == nil {
		return 0, validationError("", "nil commit")
	}
	if st := c.State(); st != StateBuilding {
		return 0, &Error{Code: ErrCodeCommitState, Message: fmt.Sprintf("commit is already %s", st)}
	}

	start := time.Now()
	if err := d.runBeginHooks(ctx, c); err != nil {
		c.fail()
		d.metrics.CommitFinished(metrics.ResultRejected, 0)
		return 0, err
	}

	stored, hookErr, err := d.persist(ctx, c)
	if hookErr != nil {
		d.metrics.CommitFinished(metrics.ResultRejected, 0)
		return d.runErrorHooks(ctx, c, hookErr)
	}
	if err != nil {
		result := metrics.ResultFailed
		if IsValidation(err) || IsConflict(err) {
			result = metrics.ResultRejected
		}
		d.metrics.CommitFinished(result, 0)
		d.logger.Error("commit failed",
			"committer", c.Committer(),
			"context", c.Context(),
			"error", err,
		)
		return 0, err
	}

	d.metrics.CommitFinished(metrics.ResultCommitted, time.Since(start))
	d.metrics.ObjectsWritten(string(ir.ChangeInsert), len(stored.Inserts))
	d.metrics.ObjectsWritten(string(ir.ChangeUpdate), len(stored.Updates))
	d.metrics.ObjectsWritten(string(ir.ChangeDelete), len(stored.Deletes))
	d.logger.Info("commit persisted",
		"timestamp", stored.Timestamp,
		"revision", stored.Revision,
		"committer", stored.Committer,
		"context", stored.Context,
		"inserts", len(stored.Inserts),
		"updates", len(stored.Updates),
		"deletes", len(stored.Deletes),
	)

	d.runPostHooks(ctx, c)
	return stored.Timestamp, nil
}

// persist runs the critical section. hookErr is set when a pre-commit hook
// rejected the commit; err is set for every other failure.
func (d *Database) persist(ctx context.Context, c *Commit) (stored ir.Commit, hookErr, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := c.validate(); err != nil {
		c.fail()
		return ir.Commit{}, nil, err
	}

	last, err := d.lastCommitInfo(ctx)
	if err != nil {
		c.fail()
		return ir.Commit{}, nil, err
	}
	if d.revisionCheck && c.expectedHead != "" && c.expectedHead != last.Revision {
		c.fail()
		return ir.Commit{}, nil, &Error{
			Code:    ErrCodeConflict,
			Message: fmt.Sprintf("head revision is %q, commit expects %q", last.Revision, c.expectedHead),
		}
	}

	for _, h := range d.hooks.Pre {
		if err := h.OnPreCommit(ctx, &d.store.Reader, c); err != nil {
			if aborts(err) {
				c.fail()
				return ir.Commit{}, err, nil
			}
			d.logger.Error("pre-commit hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
		}
	}

	if err := c.transition(StateBuilding, StateCommitting); err != nil {
		return ir.Commit{}, nil, err
	}

	ts := d.clock.Next(last.Timestamp)
	pending := c.toIR(ts, d.revisions.Generate(), last.Revision)

	stored, err = d.store.WriteCommit(context.WithoutCancel(ctx), pending)
	if err != nil {
		c.fail()
		return ir.Commit{}, nil, &Error{Code: ErrCodeBackend, Message: "write commit", Err: err}
	}
	c.committed(stored)
	return stored, nil, nil
}

func (d *Database) lastCommitInfo(ctx context.Context) (ir.CommitInfo, error) {
	infos, err := d.store.SelectCommits(ctx, queryir.CommitSelect{Descending: true, Limit: 1})
	if err != nil {
		return ir.CommitInfo{}, storeError("read last commit", "", err)
	}
	if len(infos) == 0 {
		return ir.CommitInfo{}, nil
	}
	return infos[0], nil
}

func (d *Database) runBeginHooks(ctx context.Context, c *Commit) error {
	for _, h := range d.hooks.Begin {
		if err := h.OnBeginCommit(ctx, c); err != nil {
			if aborts(err) {
				return err
			}
			d.logger.Error("begin-commit hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
		}
	}
	return nil
}

// runErrorHooks gives the error hooks a chance to replace a rejected commit.
// The first replacement commit returned is committed instead of c.
func (d *Database) runErrorHooks(ctx context.Context, c *Commit, cause error) (int64, error) {
	for _, h := range d.hooks.Error {
		replacement, err := h.OnError(ctx, c, cause)
		if err != nil {
			if aborts(err) {
				cause = err
				break
			}
			d.logger.Error("error hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			continue
		}
		if replacement != nil {
			d.logger.Info("error hook replaced rejected commit",
				"committer", replacement.Committer(),
				"context", replacement.Context(),
			)
			return d.Commit(ctx, replacement)
		}
	}
	d.logger.Warn("commit rejected", "context", c.Context(), "error", cause)
	return 0, cause
}

func (d *Database) runPostHooks(ctx context.Context, c *Commit) {
	for _, h := range d.hooks.Post {
		if err := h.OnPostCommit(ctx, c); err != nil {
			d.logger.Error("post-commit hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
		}
	}
}
