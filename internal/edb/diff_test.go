package edb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
)

func TestDiff_SelfIsEmpty(t *testing.T) {
	db := newTestDB(t)
	ts := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)

	for _, at := range []int64{0, ts, ts + 7} {
		d, err := db.Diff(context.Background(), at, at)
		require.NoError(t, err)
		assert.True(t, d.IsEmpty(), "at=%d", at)
	}
}

func TestDiff_AddedRemovedChanged(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1"), kv("b", "k", "1"), kv("c", "k", "1")}, nil)
	t2 := commitOps(t, db, []ir.Object{kv("d", "k", "1")}, []ir.Object{kv("a", "k", "2")}, "b")
	commitOps(t, db, nil, []ir.Object{kv("c", "k", "1")})

	d, err := db.Diff(ctx, t1, t2)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, oids(d.Added))
	assert.Equal(t, []string{"b"}, oids(d.Removed))
	require.Len(t, d.Changed, 1)
	assert.Equal(t, "a", d.Changed[0].OID)
	assert.Equal(t, "1", d.Changed[0].Old.String("k"))
	assert.Equal(t, "2", d.Changed[0].New.String("k"))
	assert.Equal(t, []string{"k"}, d.Changed[0].Keys)
}

func TestDiff_RewriteWithSameValuesIsNotAChange(t *testing.T) {
	db := newTestDB(t)
	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{kv("a", "k", "1")})

	d, err := db.Diff(context.Background(), t1, t2)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty())
}

func TestDiff_TypeTagChangeIsAChange(t *testing.T) {
	db := newTestDB(t)
	t1 := commitOps(t, db, []ir.Object{obj("a", ir.O("n", ir.IRInt(1)))}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{obj("a", ir.O("n", ir.IRString("1")))})

	d, err := db.Diff(context.Background(), t1, t2)
	require.NoError(t, err)
	require.Len(t, d.Changed, 1)
	assert.Equal(t, []string{"n"}, d.Changed[0].Keys)
}

func TestDiff_DeleteAndReinsertWithinWindow(t *testing.T) {
	db := newTestDB(t)
	t1 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)
	commitOps(t, db, nil, nil, "a")
	t3 := commitOps(t, db, []ir.Object{kv("a", "k", "1")}, nil)

	d, err := db.Diff(context.Background(), t1, t3)
	require.NoError(t, err)
	assert.True(t, d.IsEmpty(), "same state at both ends")
}

func TestDiff_ApplyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stamps := []int64{0}
	stamps = append(stamps, commitOps(t, db, []ir.Object{kv("a", "k", "1"), kv("b", "k", "1")}, nil))
	stamps = append(stamps, commitOps(t, db, []ir.Object{kv("c", "k", "1")}, []ir.Object{kv("a", "k", "2")}))
	stamps = append(stamps, commitOps(t, db, nil, nil, "b", "c"))
	stamps = append(stamps, commitOps(t, db, []ir.Object{kv("b", "k", "3")}, []ir.Object{obj("a", ir.O("n", ir.IRInt(9)))}))

	for _, from := range stamps {
		for _, to := range stamps {
			d, err := db.Diff(ctx, from, to)
			require.NoError(t, err)

			start, err := db.HeadAt(ctx, from)
			require.NoError(t, err)
			want, err := db.HeadAt(ctx, to)
			require.NoError(t, err)

			got := d.Apply(start)
			assert.Equal(t, digests(want), digests(got), "from=%d to=%d", from, to)
		}
	}
}

func TestDiff_NegativeTimestamp(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Diff(context.Background(), -1, 3)
	assert.True(t, IsValidation(err))
}

func digests(objs []ir.Object) map[string]string {
	out := make(map[string]string, len(objs))
	for _, o := range objs {
		out[o.OID] = o.Digest
	}
	return out
}

func TestDiff_NormalizationOnlyEditIsAChange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t1 := commitOps(t, db, []ir.Object{kv("a", "name", "\u00e9")}, nil)
	t2 := commitOps(t, db, nil, []ir.Object{kv("a", "name", "e\u0301")})

	diff, err := db.Diff(ctx, t1, t2)
	require.NoError(t, err)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, []string{"name"}, diff.Changed[0].Keys)
}
