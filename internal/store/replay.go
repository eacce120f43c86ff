package store

import (
	"context"
	"fmt"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/queryir"
)

// Replay calls fn for every commit with from <= timestamp <= to in ascending
// timestamp order, each with its object sets. A zero to means unbounded.
// Replay stops at the first error returned by fn.
func (r *Reader) Replay(ctx context.Context, from, to int64, fn func(ir.Commit) error) error {
	infos, err := r.SelectCommits(ctx, queryir.CommitSelect{
		Filter: queryir.FieldRange{Field: ir.CommitKeyTimestamp, From: from, To: to},
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := r.loadCommit(ctx, info)
		if err != nil {
			return fmt.Errorf("replay commit %d: %w", info.Timestamp, err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Stats summarizes the size of the store.
type Stats struct {
	Commits     int64 `json:"commits"`
	Versions    int64 `json:"versions"`
	OIDs        int64 `json:"oids"`
	LastCommit  int64 `json:"last_commit"`
	FirstCommit int64 `json:"first_commit"`
}

// Stats returns row counts and the commit timestamp range.
func (r *Reader) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(timestamp), 0), COALESCE(MAX(timestamp), 0) FROM commits
	`).Scan(&st.Commits, &st.FirstCommit, &st.LastCommit)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	err = r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT oid) FROM objects
	`).Scan(&st.Versions, &st.OIDs)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}
