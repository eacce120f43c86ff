package edb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/metrics"
	"github.com/roach88/edb/internal/store"
)

func TestCommit_TimestampsStrictlyIncrease(t *testing.T) {
	db := newTestDB(t)

	var last int64
	for i := 0; i < 5; i++ {
		ts := commitOps(t, db, []ir.Object{kv("o"+string(rune('a'+i)), "k", "v")}, nil)
		assert.Greater(t, ts, last)
		last = ts
	}
}

func TestCommit_ParentIsPreviousRevision(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{kv("a", "k", "2")})

	c1, err := db.GetCommit(ctx, t1)
	require.NoError(t, err)
	c2, err := db.GetCommit(ctx, t2)
	require.NoError(t, err)

	assert.Empty(t, c1.Parent)
	assert.Equal(t, c1.Revision, c2.Parent)
	assert.Equal(t, "rev-2", c2.Revision)
}

func TestWallClock(t *testing.T) {
	fixed := time.UnixMilli(1000)
	c := WallClock{Now: func() time.Time { return fixed }}

	assert.Equal(t, int64(1000), c.Next(0))
	assert.Equal(t, int64(1001), c.Next(1000), "same millisecond")
	assert.Equal(t, int64(5001), c.Next(5000), "clock stepped back")
}

func TestLogicalClock(t *testing.T) {
	c := NewLogicalClock(10)
	assert.Equal(t, int64(11), c.Next(0))
	assert.Equal(t, int64(21), c.Next(20))
	assert.Equal(t, int64(22), c.Next(0))
	assert.Equal(t, int64(22), c.Current())
}

func TestCommit_WithWallClock(t *testing.T) {
	now := time.UnixMilli(5000)
	db := newTestDB(t, WithClock(WallClock{Now: func() time.Time { return now }}))

	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	t2 := commitOps(t, db, []ir.Object{kv("b", "k", "1")}, nil)

	assert.Equal(t, int64(5000), t1)
	assert.Equal(t, int64(5001), t2)
}

func TestCommit_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	db := newTestDB(t, WithMetrics(m))

	commitOps(t, db, []ir.Object{kv("a", "k", "1"), kv("b", "k", "1")}, nil)
	commitOps(t, db, nil, nil, "a")

	c := db.CreateCommit("tester", "ctx")
	require.NoError(t, c.Insert(kv("", "k", "v")))
	_, err := db.Commit(context.Background(), c)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits().WithLabelValues(metrics.ResultCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits().WithLabelValues(metrics.ResultRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Objects().WithLabelValues("insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Objects().WithLabelValues("delete")))
}

type beginHookFunc func(ctx context.Context, c *Commit) error

func (f beginHookFunc) OnBeginCommit(ctx context.Context, c *Commit) error { return f(ctx, c) }

type preHookFunc func(ctx context.Context, r *store.Reader, c *Commit) error

func (f preHookFunc) OnPreCommit(ctx context.Context, r *store.Reader, c *Commit) error {
	return f(ctx, r, c)
}

type errorHookFunc func(ctx context.Context, c *Commit, cause error) (*Commit, error)

func (f errorHookFunc) OnError(ctx context.Context, c *Commit, cause error) (*Commit, error) {
	return f(ctx, c, cause)
}

type postHookFunc func(ctx context.Context, c *Commit) error

func (f postHookFunc) OnPostCommit(ctx context.Context, c *Commit) error { return f(ctx, c) }

func TestHooks_BeginHookMayAddOperations(t *testing.T) {
	db := newTestDB(t, WithHooks(Hooks{
		Begin: []BeginCommitHook{beginHookFunc(func(ctx context.Context, c *Commit) error {
			return c.Insert(kv("audit", "by", c.Committer()))
		})},
	}))

	commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)

	got, err := db.GetObject(context.Background(), "audit")
	require.NoError(t, err)
	assert.Equal(t, "tester", got.String("by"))
}

func TestHooks_BeginHookErrorAbortsOnlyWhenTyped(t *testing.T) {
	ctx := context.Background()

	db := newTestDB(t, WithHooks(Hooks{
		Begin: []BeginCommitHook{beginHookFunc(func(context.Context, *Commit) error {
			return errors.New("hook is flaky")
		})},
	}))
	commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)

	db = newTestDB(t, WithHooks(Hooks{
		Begin: []BeginCommitHook{beginHookFunc(func(context.Context, *Commit) error {
			return validationError("", "not today")
		})},
	}))
	c := db.CreateCommit("tester", "ctx")
	require.NoError(t, c.Insert(kv("a", "k", "1")))
	_, err := db.Commit(ctx, c)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StateFailed, c.State())
}

func TestHooks_ErrorHookReplacesRejectedCommit(t *testing.T) {
	ctx := context.Background()
	var db *Database
	db = newTestDB(t, WithHooks(Hooks{
		Pre: []PreCommitHook{preHookFunc(func(ctx context.Context, r *store.Reader, c *Commit) error {
			if c.Context() == "forbidden" {
				return &Error{Code: ErrCodeConflict, Message: "context is forbidden"}
			}
			return nil
		})},
		Error: []ErrorHook{errorHookFunc(func(ctx context.Context, c *Commit, cause error) (*Commit, error) {
			replacement := db.CreateCommit(c.Committer(), "quarantine")
			for _, o := range c.Inserts() {
				if err := replacement.Insert(o); err != nil {
					return nil, err
				}
			}
			return replacement, nil
		})},
	}))

	c := db.CreateCommit("tester", "forbidden")
	require.NoError(t, c.Insert(kv("a", "k", "1")))
	ts, err := db.Commit(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, c.State())

	stored, err := db.GetCommit(ctx, ts)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "quarantine", stored.Context)
	assert.Len(t, stored.Inserts, 1)
}

func TestHooks_RejectedCommitWithoutErrorHooksFails(t *testing.T) {
	db := newTestDB(t, WithHooks(Hooks{
		Pre: []PreCommitHook{preHookFunc(func(context.Context, *store.Reader, *Commit) error {
			return &Error{Code: ErrCodeConflict, Message: "no"}
		})},
	}))

	c := db.CreateCommit("tester", "ctx")
	require.NoError(t, c.Insert(kv("a", "k", "1")))
	_, err := db.Commit(context.Background(), c)
	assert.True(t, IsConflict(err))

	head, err := db.Head(context.Background())
	require.NoError(t, err)
	assert.Empty(t, head)
}

func TestHooks_PostHookErrorsAreIgnored(t *testing.T) {
	var seen []int64
	db := newTestDB(t, WithHooks(Hooks{
		Post: []PostCommitHook{
			postHookFunc(func(ctx context.Context, c *Commit) error {
				seen = append(seen, c.Timestamp())
				return &Error{Code: ErrCodeBackend, Message: "notification failed"}
			}),
		},
	}))

	ts := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	assert.Equal(t, []int64{ts}, seen)
}

func TestRevisionCheck_ExpectHead(t *testing.T) {
	db := newTestDB(t, WithRevisionCheck(true))
	ctx := context.Background()

	commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	head, err := db.CurrentRevision(ctx)
	require.NoError(t, err)

	stale := db.CreateCommit("tester", "ctx")
	stale.ExpectHead(head)
	require.NoError(t, stale.Update(kv("a", "k", "2")))

	fresh := db.CreateCommit("tester", "ctx")
	fresh.ExpectHead(head)
	require.NoError(t, fresh.Update(kv("a", "k", "3")))

	_, err = db.Commit(ctx, fresh)
	require.NoError(t, err)

	_, err = db.Commit(ctx, stale)
	assert.True(t, IsConflict(err))
}

func TestRevisionCheck_DisabledIgnoresExpectHead(t *testing.T) {
	db := newTestDB(t)

	c := db.CreateCommit("tester", "ctx")
	c.ExpectHead("rev-999")
	require.NoError(t, c.Insert(kv("a", "k", "1")))

	_, err := db.Commit(context.Background(), c)
	assert.NoError(t, err)
}
