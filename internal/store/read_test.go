package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/queryir"
)

// seedLifecycle writes: t1 insert A,B; t2 update A; t3 delete B; t4 re-insert B.
func seedLifecycle(t *testing.T, s *Store) {
	t.Helper()
	mustWrite(t, s, createTestCommit(1, []ir.Object{
		obj("A", ir.O("name", ir.IRString("Pump")), ir.O("rev", ir.IRInt(1))),
		obj("B", ir.O("name", ir.IRString("valve")), ir.O("rev", ir.IRInt(1))),
	}, nil))
	mustWrite(t, s, createTestCommit(2, nil, []ir.Object{
		obj("A", ir.O("name", ir.IRString("Pump")), ir.O("rev", ir.IRInt(2))),
	}))
	mustWrite(t, s, createTestCommit(3, nil, nil, "B"))
	mustWrite(t, s, createTestCommit(4, []ir.Object{
		obj("B", ir.O("name", ir.IRString("valve")), ir.O("rev", ir.IRInt(3))),
	}, nil))
}

func TestObjectAt_FallsBackToEarlierVersion(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	a, err := s.ObjectAt(ctx, "A", 1)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(1), a.Attributes["rev"])

	a, err = s.ObjectAt(ctx, "A", 3)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(2), a.Attributes["rev"])
	assert.Equal(t, int64(2), a.Timestamp)

	_, err = s.ObjectAt(ctx, "A", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ObjectAt(ctx, "missing", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateAt(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	state, err := s.StateAt(ctx, 3)
	require.NoError(t, err)
	require.Len(t, state, 1)
	assert.Equal(t, "A", state[0].OID)

	state, err = s.StateAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, oidsOf(state), "zero means head")
}

func TestStateAt_EmptyStore(t *testing.T) {
	s := createTestStore(t)

	state, err := s.StateAt(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, state)
	assert.Empty(t, state)
}

func TestHistory_IncludesTombstones(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	hist, err := s.History(ctx, "B", 0, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.False(t, hist[0].Deleted)
	assert.True(t, hist[1].Deleted)
	assert.False(t, hist[2].Deleted)
	assert.Equal(t, []int64{1, 3, 4}, []int64{hist[0].Timestamp, hist[1].Timestamp, hist[2].Timestamp})

	window, err := s.History(ctx, "B", 2, 3)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, int64(3), window[0].Timestamp)
}

func TestLog(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)

	entries, err := s.Log(context.Background(), "B", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, ir.ChangeInsert, entries[0].Change)
	assert.Equal(t, ir.ChangeDelete, entries[1].Change)
	assert.Equal(t, ir.ChangeInsert, entries[2].Change)
	assert.Equal(t, "rev-3", entries[1].Commit.Revision)
	assert.Equal(t, "tester", entries[2].Commit.Committer)
}

func TestTouchedOIDs(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	oids, err := s.TouchedOIDs(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, oids)

	oids, err = s.TouchedOIDs(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, oids)

	oids, err = s.TouchedOIDs(ctx, 4, 4)
	require.NoError(t, err)
	assert.Empty(t, oids)
}

func TestResurrectedOIDs(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)

	oids, err := s.ResurrectedOIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, oids)
}

func TestResurrectedOIDs_DeletedOnlyIsNotResurrected(t *testing.T) {
	s := createTestStore(t)
	mustWrite(t, s, createTestCommit(1, []ir.Object{obj("A")}, nil))
	mustWrite(t, s, createTestCommit(2, nil, nil, "A"))

	oids, err := s.ResurrectedOIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, oids)
}

func TestSelectObjects_ExactAndFolded(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	got, err := s.SelectObjects(ctx, queryir.ObjectSelect{
		Filter: queryir.AttrEquals{Key: "name", Value: ir.IRString("pump")},
	})
	require.NoError(t, err)
	assert.Empty(t, got, "exact match is case-sensitive")

	got, err = s.SelectObjects(ctx, queryir.ObjectSelect{
		Filter: queryir.AttrEquals{Key: "name", Value: ir.IRString("pump"), FoldCase: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, oidsOf(got))
}

func TestSelectObjects_TypeTagMustMatch(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)

	got, err := s.SelectObjects(context.Background(), queryir.ObjectSelect{
		Filter: queryir.AttrEquals{Key: "rev", Value: ir.IRString("2")},
	})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.SelectObjects(context.Background(), queryir.ObjectSelect{
		Filter: queryir.AttrEquals{Key: "rev", Value: ir.IRInt(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, oidsOf(got))
}

func TestSelectObjects_AsOfTimestamp(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)

	got, err := s.SelectObjects(context.Background(), queryir.ObjectSelect{
		At:     1,
		Filter: queryir.AttrEquals{Key: "rev", Value: ir.IRInt(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, oidsOf(got))
}

func TestSelectObjects_Wildcard(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	got, err := s.SelectObjects(ctx, queryir.ObjectSelect{
		Filter: queryir.AttrLike{Key: "name", Pattern: "P%"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, oidsOf(got))

	got, err = s.SelectObjects(ctx, queryir.ObjectSelect{
		Filter: queryir.AttrLike{Key: "name", Pattern: "%A_V%", FoldCase: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, oidsOf(got))
}

func TestSelectCommits(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	all, err := s.SelectCommits(ctx, queryir.CommitSelect{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, int64(1), all[0].Timestamp)

	last, err := s.SelectCommits(ctx, queryir.CommitSelect{
		Filter:     queryir.FieldRange{Field: ir.CommitKeyTimestamp, To: 3},
		Descending: true,
		Limit:      1,
	})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, int64(3), last[0].Timestamp)
}

func TestCommitByRevision(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	c, err := s.CommitByRevision(ctx, "rev-3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Timestamp)
	assert.Equal(t, []string{"B"}, c.Deletes)
	assert.Empty(t, c.Inserts)

	_, err = s.CommitByRevision(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommitAt_NotFound(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)

	_, err := s.CommitAt(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CommitAt(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestView_ReadsOneSnapshot(t *testing.T) {
	s := createTestStore(t)
	seedLifecycle(t, s)
	ctx := context.Background()

	err := s.View(ctx, func(r *Reader) error {
		last, err := r.LastTimestamp(ctx)
		require.NoError(t, err)
		state, err := r.StateAt(ctx, last)
		require.NoError(t, err)
		assert.Len(t, state, 2)

		a, err := r.ObjectAt(ctx, "A", last)
		require.NoError(t, err)
		assert.Equal(t, ir.IRInt(2), a.Attributes["rev"])
		return nil
	})
	require.NoError(t, err)
}

func TestResolveAt(t *testing.T) {
	chain := []int64{2, 5, 9}

	tests := []struct {
		at   int64
		want int64
		ok   bool
	}{
		{1, 0, false},
		{2, 2, true},
		{4, 2, true},
		{5, 5, true},
		{100, 9, true},
	}
	for _, tt := range tests {
		got, ok := resolveAt(chain, tt.at)
		assert.Equal(t, tt.ok, ok, "at=%d", tt.at)
		assert.Equal(t, tt.want, got, "at=%d", tt.at)
	}

	_, ok := resolveAt(nil, 10)
	assert.False(t, ok)
}

func oidsOf(objs []ir.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.OID
	}
	return out
}
