package edb

import (
	"context"
	"fmt"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// VerifyReport is the result of rebuilding the head from the commit log.
type VerifyReport struct {
	Commits      int      `json:"commits"`
	Objects      int      `json:"objects"`
	ReplayDigest string   `json:"replay_digest"`
	HeadDigest   string   `json:"head_digest"`
	Mismatches   []string `json:"mismatches,omitempty"`
}

// OK reports whether the replayed head matches the stored head.
func (r VerifyReport) OK() bool {
	return r.ReplayDigest == r.HeadDigest && len(r.Mismatches) == 0
}

// Verify replays every commit in timestamp order into an in-memory state and
// compares it with the stored head. It also checks that every stored
// version's digest matches its attributes and that commit timestamps are
// strictly increasing.
func (d *Database) Verify(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	err := d.store.View(ctx, func(r *store.Reader) error {
		state := make(map[string]ir.Object)
		var last int64

		err := r.Replay(ctx, 0, 0, func(c ir.Commit) error {
			report.Commits++
			if c.Timestamp <= last {
				report.Mismatches = append(report.Mismatches,
					fmt.Sprintf("commit %d does not follow %d", c.Timestamp, last))
			}
			last = c.Timestamp

			for _, set := range [][]ir.Object{c.Inserts, c.Updates} {
				for _, obj := range set {
					want, err := ir.ObjectDigest(obj.Attributes)
					if err != nil {
						return fmt.Errorf("%s@%d: %w", obj.OID, obj.Timestamp, err)
					}
					if want != obj.Digest {
						report.Mismatches = append(report.Mismatches,
							fmt.Sprintf("%s@%d: digest %s, attributes hash to %s", obj.OID, obj.Timestamp, obj.Digest, want))
					}
					state[obj.OID] = obj
				}
			}
			for _, oid := range c.Deletes {
				delete(state, oid)
			}
			return nil
		})
		if err != nil {
			return err
		}

		replayed := make([]ir.Object, 0, len(state))
		for _, obj := range state {
			replayed = append(replayed, obj)
		}
		ir.SortObjects(replayed)

		head, err := r.StateAt(ctx, 0)
		if err != nil {
			return err
		}
		report.Objects = len(head)

		if report.ReplayDigest, err = ir.StateDigest(replayed); err != nil {
			return err
		}
		if report.HeadDigest, err = ir.StateDigest(head); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return VerifyReport{}, asError("verify", err)
	}

	if !report.OK() {
		d.logger.Warn("verification found mismatches",
			"replay_digest", report.ReplayDigest,
			"head_digest", report.HeadDigest,
			"mismatches", len(report.Mismatches),
		)
	}
	return report, nil
}
