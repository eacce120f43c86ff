package edb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
)

func TestHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{kv("a", "k", "2")})
	t3 := commitOps(t, db, nil, nil, "a")

	hist, err := db.History(ctx, "a")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []int64{t1, t2, t3}, []int64{hist[0].Timestamp, hist[1].Timestamp, hist[2].Timestamp})
	assert.True(t, hist[2].Deleted)

	window, err := db.HistoryRange(ctx, "a", t1, t1)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "1", window[0].String("k"))

	window, err = db.HistoryRange(ctx, "a", t2, t3)
	require.NoError(t, err)
	assert.Len(t, window, 2)

	none, err := db.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = db.HistoryRange(ctx, "a", t3, t1)
	assert.True(t, IsValidation(err))
}

func TestLog(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	c := db.CreateCommit("bob", "plant-b")
	c.SetComment("fix typo")
	require.NoError(t, c.Update(kv("a", "k", "2")))
	t2, err := db.Commit(ctx, c)
	require.NoError(t, err)

	entries, err := db.Log(ctx, "a", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ir.ChangeInsert, entries[0].Change)
	assert.Equal(t, ir.ChangeUpdate, entries[1].Change)
	assert.Equal(t, t2, entries[1].Timestamp)
	assert.Equal(t, "bob", entries[1].Commit.Committer)
	assert.Equal(t, "fix typo", entries[1].Commit.Comment)
}

func TestResurrectedOIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	commitOps(t, db, []ir.Object{kv("a", "k", "1"), kv("b", "k", "1"), kv("c", "k", "1")}, nil)
	commitOps(t, db, nil, nil, "a", "b")
	commitOps(t, db, []ir.Object{kv("a", "k", "2")}, nil)

	oids, err := db.ResurrectedOIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, oids)
}

// An object is inserted, updated, and queried by its old value.
func TestScenario_UpdateHidesOldValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t1 := commitOps(t, db, []ir.Object{kv("o1", "k", "v1")}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{kv("o1", "k", "v2")})

	got, err := db.Query(ctx, "k", ir.IRString("v1"))
	require.NoError(t, err)
	assert.Empty(t, got)

	hist, err := db.HistoryRange(ctx, "o1", t1, t1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "v1", hist[0].String("k"))

	d, err := db.Diff(ctx, t1, t2)
	require.NoError(t, err)
	require.Len(t, d.Changed, 1)
	assert.Equal(t, "v1", d.Changed[0].Old.String("k"))
	assert.Equal(t, "v2", d.Changed[0].New.String("k"))
}
