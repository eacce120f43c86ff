package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/edb/internal/ir"
)

// WriteCommit appends a commit and all of its object versions in a single
// transaction. Either every row becomes visible or none does.
//
// The caller assigns Timestamp and Revision; Timestamp must exceed every
// stored commit timestamp (ErrTimestampOrder otherwise). The store assigns
// each version its model version number and digest and returns the commit as
// stored.
func (s *Store) WriteCommit(ctx context.Context, c ir.Commit) (ir.Commit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Commit{}, fmt.Errorf("write commit: begin: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(timestamp), 0) FROM commits`).Scan(&last); err != nil {
		return ir.Commit{}, fmt.Errorf("write commit: last timestamp: %w", err)
	}
	if c.Timestamp <= last {
		return ir.Commit{}, fmt.Errorf("write commit %d after %d: %w", c.Timestamp, last, ErrTimestampOrder)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commits
		(timestamp, revision, parent, committer, context, comment, domain_id, connector_id, instance_id, engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.Timestamp,
		c.Revision,
		c.Parent,
		c.Committer,
		c.Context,
		c.Comment,
		c.DomainID,
		c.ConnectorID,
		c.InstanceID,
		ir.EngineVersion,
	)
	if err != nil {
		return ir.Commit{}, fmt.Errorf("write commit: insert commit: %w", err)
	}

	stored := ir.Commit{
		CommitInfo: c.CommitInfo,
		Inserts:    make([]ir.Object, 0, len(c.Inserts)),
		Updates:    make([]ir.Object, 0, len(c.Updates)),
		Deletes:    make([]string, 0, len(c.Deletes)),
	}

	for _, obj := range c.Inserts {
		v, err := writeVersion(ctx, tx, c.Timestamp, ir.ChangeInsert, obj)
		if err != nil {
			return ir.Commit{}, fmt.Errorf("write commit: insert %s: %w", obj.OID, err)
		}
		stored.Inserts = append(stored.Inserts, v)
	}
	for _, obj := range c.Updates {
		v, err := writeVersion(ctx, tx, c.Timestamp, ir.ChangeUpdate, obj)
		if err != nil {
			return ir.Commit{}, fmt.Errorf("write commit: update %s: %w", obj.OID, err)
		}
		stored.Updates = append(stored.Updates, v)
	}
	for _, oid := range c.Deletes {
		if _, err := writeVersion(ctx, tx, c.Timestamp, ir.ChangeDelete, ir.Object{OID: oid, Deleted: true}); err != nil {
			return ir.Commit{}, fmt.Errorf("write commit: delete %s: %w", oid, err)
		}
		stored.Deletes = append(stored.Deletes, oid)
	}

	// Readers wait on the single connection until the commit lands, so the
	// cache is clean before any of them can read the new versions.
	s.chains.invalidate(c.OIDs())
	if err := tx.Commit(); err != nil {
		return ir.Commit{}, fmt.Errorf("write commit: %w", err)
	}
	return stored, nil
}

// writeVersion appends one version of obj at timestamp ts and its entries.
func writeVersion(ctx context.Context, tx *sql.Tx, ts int64, op ir.ChangeType, obj ir.Object) (ir.Object, error) {
	var prev int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM objects WHERE oid = ?
	`, obj.OID).Scan(&prev); err != nil {
		return ir.Object{}, fmt.Errorf("previous version: %w", err)
	}

	attrs := obj.Attributes
	if obj.Deleted || attrs == nil {
		attrs = ir.IRObject{}
	}
	attrsJSON, err := marshalAttrs(attrs)
	if err != nil {
		return ir.Object{}, err
	}
	digest, err := ir.ObjectDigest(attrs)
	if err != nil {
		return ir.Object{}, err
	}

	v := ir.Object{
		OID:        obj.OID,
		Attributes: attrs,
		Timestamp:  ts,
		Version:    prev + 1,
		Deleted:    obj.Deleted,
		Digest:     digest,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO objects (oid, timestamp, op, version, deleted, attrs, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.OID, ts, string(op), v.Version, boolToInt(v.Deleted), attrsJSON, digest)
	if err != nil {
		return ir.Object{}, fmt.Errorf("insert version: %w", err)
	}

	if v.Deleted {
		return v, nil
	}
	for _, e := range entriesOf(attrs) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entries (oid, timestamp, key, type, value)
			VALUES (?, ?, ?, ?, ?)
		`, v.OID, ts, e.key, string(e.typ), e.value)
		if err != nil {
			return ir.Object{}, fmt.Errorf("insert entry %q: %w", e.key, err)
		}
	}
	return v, nil
}
