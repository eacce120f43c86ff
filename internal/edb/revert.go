package edb

import (
	"context"
	"fmt"
	"math"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// Revert commits the inverse of the commit with the given revision: every
// OID it touched returns to the state it had just before that commit.
// OIDs whose current state already matches are left alone. The new commit
// shares the reverted commit's context.
func (d *Database) Revert(ctx context.Context, revision, committer string) (int64, error) {
	c := d.CreateCommit(committer, "")

	err := d.store.View(ctx, func(r *store.Reader) error {
		target, err := r.CommitByRevision(ctx, revision)
		if err != nil {
			return err
		}
		c.setContext(target.Context)
		c.SetComment(fmt.Sprintf("revert %s", revision))

		for _, oid := range target.OIDs() {
			before, wasLive, err := liveVersion(ctx, r, oid, target.Timestamp-1)
			if err != nil {
				return err
			}
			head, isLive, err := liveVersion(ctx, r, oid, math.MaxInt64)
			if err != nil {
				return err
			}

			switch {
			case wasLive && isLive:
				if !before.Attributes.Equal(head.Attributes) {
					err = c.Update(ir.NewObject(oid, before.Attributes))
				}
			case wasLive:
				err = c.Insert(ir.NewObject(oid, before.Attributes))
			case isLive:
				err = c.Delete(oid)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, asError("revert "+revision, err)
	}

	return d.Commit(ctx, c)
}
