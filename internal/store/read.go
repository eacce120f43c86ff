package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/queryir"
	"github.com/roach88/edb/internal/querysql"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader runs read queries against the store or against one transaction.
// Every multi-row read is ordered deterministically and returns an empty
// slice, never nil, when nothing matches.
type Reader struct {
	q      querier
	chains *chainIndex
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// LastTimestamp returns the timestamp of the newest commit, or 0 for an empty store.
func (r *Reader) LastTimestamp(ctx context.Context) (int64, error) {
	var ts int64
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(timestamp), 0) FROM commits`).Scan(&ts); err != nil {
		return 0, fmt.Errorf("last timestamp: %w", err)
	}
	return ts, nil
}

// ObjectAt returns the version of oid that was current at timestamp at,
// tombstones included. Returns ErrNotFound if oid has no version at or before at.
func (r *Reader) ObjectAt(ctx context.Context, oid string, at int64) (ir.Object, error) {
	chain, err := r.Timestamps(ctx, oid)
	if err != nil {
		return ir.Object{}, err
	}
	ts, ok := resolveAt(chain, at)
	if !ok {
		return ir.Object{}, fmt.Errorf("object %s at %d: %w", oid, at, ErrNotFound)
	}
	return r.Version(ctx, oid, ts)
}

// Version returns the version of oid written at exactly ts.
func (r *Reader) Version(ctx context.Context, oid string, ts int64) (ir.Object, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT oid, timestamp, version, deleted, attrs, digest
		FROM objects
		WHERE oid = ? AND timestamp = ?
	`, oid, ts)

	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Object{}, fmt.Errorf("object %s at %d: %w", oid, ts, ErrNotFound)
	}
	return obj, err
}

// SelectObjects runs a compiled ObjectSelect and returns the matching live
// versions ordered by OID.
func (r *Reader) SelectObjects(ctx context.Context, q queryir.ObjectSelect) ([]ir.Object, error) {
	sqlText, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}
	defer rows.Close()

	return collectObjects(rows)
}

// StateAt returns every live object as of at, ordered by OID.
func (r *Reader) StateAt(ctx context.Context, at int64) ([]ir.Object, error) {
	return r.SelectObjects(ctx, queryir.ObjectSelect{At: at})
}

// History returns the versions of oid with from <= timestamp <= to in
// ascending order, tombstones included. A zero to means unbounded.
func (r *Reader) History(ctx context.Context, oid string, from, to int64) ([]ir.Object, error) {
	if to == 0 {
		to = math.MaxInt64
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT oid, timestamp, version, deleted, attrs, digest
		FROM objects
		WHERE oid = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, oid, from, to)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return collectObjects(rows)
}

// Log returns the change events of oid with from <= timestamp <= to in
// ascending order, each with the metadata of its commit.
func (r *Reader) Log(ctx context.Context, oid string, from, to int64) ([]ir.LogEntry, error) {
	if to == 0 {
		to = math.MaxInt64
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT o.op,
		       o.oid, o.timestamp, o.version, o.deleted, o.attrs, o.digest,
		       c.timestamp, c.revision, c.parent, c.committer, c.context, c.comment,
		       c.domain_id, c.connector_id, c.instance_id
		FROM objects o
		JOIN commits c ON c.timestamp = o.timestamp
		WHERE o.oid = ? AND o.timestamp >= ? AND o.timestamp <= ?
		ORDER BY o.timestamp ASC
	`, oid, from, to)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	entries := []ir.LogEntry{}
	for rows.Next() {
		var (
			op      string
			entry   ir.LogEntry
			deleted int
			attrs   string
		)
		err := rows.Scan(&op,
			&entry.Object.OID, &entry.Object.Timestamp, &entry.Object.Version, &deleted, &attrs, &entry.Object.Digest,
			&entry.Commit.Timestamp, &entry.Commit.Revision, &entry.Commit.Parent, &entry.Commit.Committer,
			&entry.Commit.Context, &entry.Commit.Comment,
			&entry.Commit.DomainID, &entry.Commit.ConnectorID, &entry.Commit.InstanceID)
		if err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entry.Object.Deleted = deleted != 0
		if entry.Object.Attributes, err = unmarshalAttrs(attrs); err != nil {
			return nil, err
		}
		entry.OID = entry.Object.OID
		entry.Timestamp = entry.Object.Timestamp
		entry.Change = ir.ChangeType(op)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// TouchedOIDs returns the OIDs written by commits with from < timestamp <= to.
func (r *Reader) TouchedOIDs(ctx context.Context, from, to int64) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT oid FROM objects
		WHERE timestamp > ? AND timestamp <= ?
		ORDER BY oid COLLATE BINARY ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query touched oids: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// ResurrectedOIDs returns every OID with a tombstone followed later by a live version.
func (r *Reader) ResurrectedOIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT d.oid
		FROM objects d
		JOIN objects l ON l.oid = d.oid AND l.timestamp > d.timestamp AND l.deleted = 0
		WHERE d.deleted = 1
		ORDER BY d.oid COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resurrected oids: %w", err)
	}
	defer rows.Close()

	return collectStrings(rows)
}

// CommitAt returns the commit with exactly timestamp ts, including its object sets.
// Returns ErrNotFound if no commit has that timestamp.
func (r *Reader) CommitAt(ctx context.Context, ts int64) (ir.Commit, error) {
	if ts <= 0 {
		return ir.Commit{}, fmt.Errorf("commit %d: %w", ts, ErrNotFound)
	}
	infos, err := r.SelectCommits(ctx, queryir.CommitSelect{
		Filter: queryir.FieldRange{Field: ir.CommitKeyTimestamp, From: ts, To: ts},
	})
	if err != nil {
		return ir.Commit{}, err
	}
	if len(infos) == 0 {
		return ir.Commit{}, fmt.Errorf("commit %d: %w", ts, ErrNotFound)
	}
	return r.loadCommit(ctx, infos[0])
}

// CommitByRevision returns the commit with the given revision id.
func (r *Reader) CommitByRevision(ctx context.Context, revision string) (ir.Commit, error) {
	infos, err := r.SelectCommits(ctx, queryir.CommitSelect{
		Filter: queryir.FieldEquals{Field: ir.CommitKeyRevision, Value: revision},
	})
	if err != nil {
		return ir.Commit{}, err
	}
	if len(infos) == 0 {
		return ir.Commit{}, fmt.Errorf("revision %s: %w", revision, ErrNotFound)
	}
	return r.loadCommit(ctx, infos[0])
}

// SelectCommits runs a compiled CommitSelect.
func (r *Reader) SelectCommits(ctx context.Context, q queryir.CommitSelect) ([]ir.CommitInfo, error) {
	sqlText, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("select commits: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("select commits: %w", err)
	}
	defer rows.Close()

	infos := []ir.CommitInfo{}
	for rows.Next() {
		info, err := scanCommitInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return infos, nil
}

// loadCommit attaches the object sets written at info.Timestamp.
func (r *Reader) loadCommit(ctx context.Context, info ir.CommitInfo) (ir.Commit, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT op, oid, timestamp, version, deleted, attrs, digest
		FROM objects
		WHERE timestamp = ?
		ORDER BY oid COLLATE BINARY ASC
	`, info.Timestamp)
	if err != nil {
		return ir.Commit{}, fmt.Errorf("query commit objects: %w", err)
	}
	defer rows.Close()

	c := ir.Commit{
		CommitInfo: info,
		Inserts:    []ir.Object{},
		Updates:    []ir.Object{},
		Deletes:    []string{},
	}
	for rows.Next() {
		var (
			op      string
			obj     ir.Object
			deleted int
			attrs   string
		)
		if err := rows.Scan(&op, &obj.OID, &obj.Timestamp, &obj.Version, &deleted, &attrs, &obj.Digest); err != nil {
			return ir.Commit{}, fmt.Errorf("scan commit object: %w", err)
		}
		obj.Deleted = deleted != 0
		if obj.Attributes, err = unmarshalAttrs(attrs); err != nil {
			return ir.Commit{}, err
		}

		switch ir.ChangeType(op) {
		case ir.ChangeInsert:
			c.Inserts = append(c.Inserts, obj)
		case ir.ChangeUpdate:
			c.Updates = append(c.Updates, obj)
		case ir.ChangeDelete:
			c.Deletes = append(c.Deletes, obj.OID)
		default:
			return ir.Commit{}, fmt.Errorf("commit %d: unknown op %q", info.Timestamp, op)
		}
	}
	if err := rows.Err(); err != nil {
		return ir.Commit{}, fmt.Errorf("iterate commit objects: %w", err)
	}
	return c, nil
}

func scanObject(row rowScanner) (ir.Object, error) {
	var (
		obj     ir.Object
		deleted int
		attrs   string
	)
	if err := row.Scan(&obj.OID, &obj.Timestamp, &obj.Version, &deleted, &attrs, &obj.Digest); err != nil {
		return ir.Object{}, err
	}
	obj.Deleted = deleted != 0

	var err error
	if obj.Attributes, err = unmarshalAttrs(attrs); err != nil {
		return ir.Object{}, err
	}
	return obj, nil
}

func scanCommitInfo(row rowScanner) (ir.CommitInfo, error) {
	var info ir.CommitInfo
	err := row.Scan(&info.Timestamp, &info.Revision, &info.Parent, &info.Committer, &info.Context,
		&info.Comment, &info.DomainID, &info.ConnectorID, &info.InstanceID)
	if err != nil {
		return ir.CommitInfo{}, fmt.Errorf("scan commit: %w", err)
	}
	return info, nil
}

func collectObjects(rows *sql.Rows) ([]ir.Object, error) {
	objs := []ir.Object{}
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		objs = append(objs, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objs, nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}
