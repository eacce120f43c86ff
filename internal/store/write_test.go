package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edb/internal/ir"
)

func TestWriteCommit_AssignsVersionsAndDigests(t *testing.T) {
	s := createTestStore(t)

	c1 := mustWrite(t, s, createTestCommit(1, []ir.Object{obj("A", ir.O("v", ir.IRInt(1)))}, nil))
	require.Len(t, c1.Inserts, 1)
	assert.Equal(t, int64(1), c1.Inserts[0].Version)
	assert.Equal(t, int64(1), c1.Inserts[0].Timestamp)
	assert.Equal(t, ir.MustObjectDigest(ir.IRObject{"v": ir.IRInt(1)}), c1.Inserts[0].Digest)

	c2 := mustWrite(t, s, createTestCommit(2, nil, []ir.Object{obj("A", ir.O("v", ir.IRInt(2)))}))
	assert.Equal(t, int64(2), c2.Updates[0].Version)

	c3 := mustWrite(t, s, createTestCommit(3, nil, nil, "A"))
	assert.Equal(t, []string{"A"}, c3.Deletes)

	tomb, err := s.ObjectAt(context.Background(), "A", 3)
	require.NoError(t, err)
	assert.True(t, tomb.Deleted)
	assert.Equal(t, int64(3), tomb.Version)
	assert.Empty(t, tomb.Attributes)
}

func TestWriteCommit_RejectsNonIncreasingTimestamp(t *testing.T) {
	s := createTestStore(t)
	mustWrite(t, s, createTestCommit(5, []ir.Object{obj("A")}, nil))

	_, err := s.WriteCommit(context.Background(), createTestCommit(5, []ir.Object{obj("B")}, nil))
	assert.ErrorIs(t, err, ErrTimestampOrder)

	_, err = s.WriteCommit(context.Background(), createTestCommit(4, []ir.Object{obj("B")}, nil))
	assert.ErrorIs(t, err, ErrTimestampOrder)
}

func TestWriteCommit_IsAtomic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// The same OID twice in one commit violates the (oid, timestamp) key, so
	// the whole commit must be rolled back.
	bad := createTestCommit(1, []ir.Object{obj("A"), obj("B")}, []ir.Object{obj("A")})
	_, err := s.WriteCommit(ctx, bad)
	require.Error(t, err)

	last, err := s.LastTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	_, err = s.ObjectAt(ctx, "B", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteCommit_InvalidatesChainCache(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustWrite(t, s, createTestCommit(1, []ir.Object{obj("A", ir.O("v", ir.IRInt(1)))}, nil))
	chain, err := s.Timestamps(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, chain)

	mustWrite(t, s, createTestCommit(2, nil, []ir.Object{obj("A", ir.O("v", ir.IRInt(2)))}))
	chain, err = s.Timestamps(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, chain)

	got, err := s.ObjectAt(ctx, "A", 10)
	require.NoError(t, err)
	assert.Equal(t, ir.IRInt(2), got.Attributes["v"])
}

func TestWriteCommit_ConcurrentReadersSeeFreshChains(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	mustWrite(t, s, createTestCommit(1, []ir.Object{obj("A", ir.O("v", ir.IRInt(1)))}, nil))

	const rounds = 100
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				err := s.View(ctx, func(r *Reader) error {
					last, err := r.LastTimestamp(ctx)
					if err != nil {
						return err
					}
					chain, err := r.Timestamps(ctx, "A")
					if err != nil {
						return err
					}
					assert.Equal(t, last, chain[len(chain)-1], "stale chain for A")
					return nil
				})
				if !assert.NoError(t, err) {
					return
				}
			}
		}()
	}

	for ts := int64(2); ts <= rounds; ts++ {
		mustWrite(t, s, createTestCommit(ts, nil, []ir.Object{obj("A", ir.O("v", ir.IRInt(ts)))}))
	}
	close(done)
	wg.Wait()

	chain, err := s.Timestamps(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, chain, rounds)
}

func TestWriteCommit_StoresMetadata(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestCommit(1, []ir.Object{obj("A")}, nil)
	c.Comment = "initial import"
	c.Parent = ""
	c.DomainID, c.ConnectorID, c.InstanceID = "issue", "jira", "prod"
	mustWrite(t, s, c)

	got, err := s.CommitAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, c.CommitInfo, got.CommitInfo)
	require.Len(t, got.Inserts, 1)
	assert.Equal(t, "A", got.Inserts[0].OID)
}
