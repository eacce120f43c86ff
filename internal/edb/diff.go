package edb

import (
	"context"
	"errors"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// Diff compares the live state at t1 with the live state at t2.
//
// Only OIDs written by a commit between the two timestamps can differ, so
// the diff visits those and resolves each at both ends. An OID is changed
// when any attribute differs in type tag or value. Diff(t, t) is empty and
// Diff(t1, t2).Apply(HeadAt(t1)) equals HeadAt(t2).
func (d *Database) Diff(ctx context.Context, t1, t2 int64) (ir.Diff, error) {
	if t1 < 0 || t2 < 0 {
		return ir.Diff{}, validationError("", "negative timestamp in diff [%d, %d]", t1, t2)
	}

	diff := ir.Diff{
		From:    t1,
		To:      t2,
		Added:   []ir.Object{},
		Removed: []ir.Object{},
		Changed: []ir.DiffEntry{},
	}
	if t1 == t2 {
		return diff, nil
	}

	lo, hi := min(t1, t2), max(t1, t2)
	err := d.store.View(ctx, func(r *store.Reader) error {
		oids, err := r.TouchedOIDs(ctx, lo, hi)
		if err != nil {
			return err
		}
		for _, oid := range oids {
			before, hadBefore, err := liveVersion(ctx, r, oid, t1)
			if err != nil {
				return err
			}
			after, hasAfter, err := liveVersion(ctx, r, oid, t2)
			if err != nil {
				return err
			}

			switch {
			case !hadBefore && hasAfter:
				diff.Added = append(diff.Added, after)
			case hadBefore && !hasAfter:
				diff.Removed = append(diff.Removed, before)
			case hadBefore && hasAfter:
				if keys := ir.ChangedKeys(before.Attributes, after.Attributes); len(keys) > 0 {
					diff.Changed = append(diff.Changed, ir.DiffEntry{OID: oid, Old: before, New: after, Keys: keys})
				}
			}
		}
		return nil
	})
	if err != nil {
		return ir.Diff{}, storeError("diff", "", err)
	}
	return diff, nil
}

// liveVersion resolves oid at t and reports whether that version is live.
func liveVersion(ctx context.Context, r *store.Reader, oid string, t int64) (ir.Object, bool, error) {
	obj, err := r.ObjectAt(ctx, oid, t)
	if errors.Is(err, store.ErrNotFound) {
		return ir.Object{}, false, nil
	}
	if err != nil {
		return ir.Object{}, false, err
	}
	return obj, !obj.Deleted, nil
}
