package edb

import (
	"context"
	"errors"
	"math"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// GetObject returns the current version of oid.
// Returns ErrCodeNotFound if oid never existed or is deleted.
func (d *Database) GetObject(ctx context.Context, oid string) (ir.Object, error) {
	return liveAt(ctx, &d.store.Reader, oid, math.MaxInt64)
}

// GetObjectAt returns the version of oid that was live at timestamp t.
func (d *Database) GetObjectAt(ctx context.Context, oid string, t int64) (ir.Object, error) {
	return liveAt(ctx, &d.store.Reader, oid, t)
}

// GetObjects returns the current versions of oids in the given order.
// It fails with ErrCodeNotFound on the first OID that is not live.
func (d *Database) GetObjects(ctx context.Context, oids []string) ([]ir.Object, error) {
	out := make([]ir.Object, 0, len(oids))
	err := d.store.View(ctx, func(r *store.Reader) error {
		for _, oid := range oids {
			obj, err := liveAt(ctx, r, oid, math.MaxInt64)
			if err != nil {
				return err
			}
			out = append(out, obj)
		}
		return nil
	})
	if err != nil {
		return nil, asError("get objects", err)
	}
	return out, nil
}

// Head returns every live object ordered by OID.
func (d *Database) Head(ctx context.Context) ([]ir.Object, error) {
	objs, err := d.store.StateAt(ctx, 0)
	if err != nil {
		return nil, storeError("read head", "", err)
	}
	return objs, nil
}

// HeadAt returns, for every OID, its newest version with timestamp <= t if
// that version is live. t need not be a commit timestamp. t <= 0 yields an
// empty state.
func (d *Database) HeadAt(ctx context.Context, t int64) ([]ir.Object, error) {
	if t <= 0 {
		return []ir.Object{}, nil
	}
	objs, err := d.store.StateAt(ctx, t)
	if err != nil {
		return nil, storeError("read head", "", err)
	}
	return objs, nil
}

// CurrentTimestamp returns the timestamp of the newest commit, or 0.
func (d *Database) CurrentTimestamp(ctx context.Context) (int64, error) {
	ts, err := d.store.LastTimestamp(ctx)
	if err != nil {
		return 0, storeError("read last timestamp", "", err)
	}
	return ts, nil
}

// CurrentRevision returns the revision of the newest commit, or "".
func (d *Database) CurrentRevision(ctx context.Context) (string, error) {
	info, err := d.lastCommitInfo(ctx)
	if err != nil {
		return "", err
	}
	return info.Revision, nil
}

// ModelVersion returns the model version of the newest version of oid,
// tombstones included. An unknown OID has version 0.
func (d *Database) ModelVersion(ctx context.Context, oid string) (int64, error) {
	obj, err := d.store.ObjectAt(ctx, oid, math.MaxInt64)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, storeError("read version", oid, err)
	}
	return obj.Version, nil
}

func liveAt(ctx context.Context, r *store.Reader, oid string, t int64) (ir.Object, error) {
	obj, err := r.ObjectAt(ctx, oid, t)
	if err != nil {
		return ir.Object{}, storeError("read object", oid, err)
	}
	if obj.Deleted {
		return ir.Object{}, notFoundError(oid, "object is deleted")
	}
	return obj, nil
}

// asError passes *Error values through and wraps anything else as a
// backend failure.
func asError(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return storeError(op, "", err)
}
