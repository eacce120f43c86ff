package store

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// chainIndex caches the ascending version timestamps of recently used OIDs.
// Resolving "the version of oid as of t" is a binary search over the chain
// followed by a primary-key read, so point lookups cost O(log v).
type chainIndex struct {
	cache *lru.Cache[string, []int64]
	gen   atomic.Uint64 // bumped after every commit; stale loads are not cached
}

func newChainIndex(size int) (*chainIndex, error) {
	if size <= 0 {
		size = DefaultChainCacheSize
	}
	cache, err := lru.New[string, []int64](size)
	if err != nil {
		return nil, err
	}
	return &chainIndex{cache: cache}, nil
}

// invalidate drops the cached chains of oids written by a commit.
func (c *chainIndex) invalidate(oids []string) {
	c.gen.Add(1)
	for _, oid := range oids {
		c.cache.Remove(oid)
	}
}

// Timestamps returns the ascending timestamps of every version of oid,
// tombstones included. Returns an empty slice for an unknown oid.
func (r *Reader) Timestamps(ctx context.Context, oid string) ([]int64, error) {
	if chain, ok := r.chains.cache.Get(oid); ok {
		return chain, nil
	}

	gen := r.chains.gen.Load()
	rows, err := r.q.QueryContext(ctx, `
		SELECT timestamp FROM objects
		WHERE oid = ?
		ORDER BY timestamp ASC
	`, oid)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	chain := []int64{}
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan chain: %w", err)
		}
		chain = append(chain, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain: %w", err)
	}

	if len(chain) > 0 && r.chains.gen.Load() == gen {
		r.chains.cache.Add(oid, chain)
	}
	return chain, nil
}

// resolveAt returns the greatest timestamp in chain that is <= at.
func resolveAt(chain []int64, at int64) (int64, bool) {
	i := sort.Search(len(chain), func(i int) bool { return chain[i] > at })
	if i == 0 {
		return 0, false
	}
	return chain[i-1], true
}
