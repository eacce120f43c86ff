package edb

import (
	"context"

	"github.com/roach88/edb/internal/ir"
)

// History returns every version of oid in ascending timestamp order,
// tombstones included. An unknown OID has an empty history.
func (d *Database) History(ctx context.Context, oid string) ([]ir.Object, error) {
	return d.HistoryRange(ctx, oid, 0, 0)
}

// HistoryRange returns the versions of oid with from <= timestamp <= to,
// ascending, tombstones included. A zero to is unbounded.
func (d *Database) HistoryRange(ctx context.Context, oid string, from, to int64) ([]ir.Object, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	objs, err := d.store.History(ctx, oid, from, to)
	if err != nil {
		return nil, storeError("read history", oid, err)
	}
	return objs, nil
}

// Log returns the change events of oid with from <= timestamp <= to in
// ascending order, each with its commit metadata. A zero to is unbounded.
func (d *Database) Log(ctx context.Context, oid string, from, to int64) ([]ir.LogEntry, error) {
	if err := checkWindow(from, to); err != nil {
		return nil, err
	}
	entries, err := d.store.Log(ctx, oid, from, to)
	if err != nil {
		return nil, storeError("read log", oid, err)
	}
	return entries, nil
}

// ResurrectedOIDs returns the OIDs that were deleted and later inserted
// again, sorted.
func (d *Database) ResurrectedOIDs(ctx context.Context) ([]string, error) {
	oids, err := d.store.ResurrectedOIDs(ctx)
	if err != nil {
		return nil, storeError("read resurrected oids", "", err)
	}
	return oids, nil
}

func checkWindow(from, to int64) error {
	if from < 0 || to < 0 || (to != 0 && from > to) {
		return validationError("", "invalid timestamp window [%d, %d]", from, to)
	}
	return nil
}
