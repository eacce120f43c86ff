package edb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/queryir"
	"github.com/roach88/edb/internal/store"
)

// Query returns the head objects whose attribute key equals value.
func (d *Database) Query(ctx context.Context, key string, value ir.IRValue) ([]ir.Object, error) {
	return d.QueryMap(ctx, map[string]ir.IRValue{key: value})
}

// QueryMap returns the head objects matching every key/value pair. Values
// match only when both the type tag and the value are equal.
func (d *Database) QueryMap(ctx context.Context, params map[string]ir.IRValue) ([]ir.Object, error) {
	return d.QueryRequest(ctx, ir.QueryRequest{Params: params})
}

// QueryRequest runs an object query with a timestamp bound and optional
// case-insensitive or wildcard matching of string values.
func (d *Database) QueryRequest(ctx context.Context, req ir.QueryRequest) ([]ir.Object, error) {
	if req.Timestamp < 0 {
		return nil, validationError("", "negative timestamp %d", req.Timestamp)
	}

	keys := ir.IRObject(req.Params).SortedKeys()
	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		v := req.Params[k]
		if k == "" {
			return nil, validationError("", "empty query key")
		}
		if ir.TypeOf(v) == "" {
			return nil, validationError("", "query key %q has unsupported value %T", k, v)
		}
		if s, ok := v.(ir.IRString); ok && req.Wildcard {
			preds = append(preds, queryir.AttrLike{Key: k, Pattern: string(s), FoldCase: req.CaseInsensitive})
			continue
		}
		preds = append(preds, queryir.AttrEquals{Key: k, Value: v, FoldCase: req.CaseInsensitive})
	}

	objs, err := d.store.SelectObjects(ctx, queryir.ObjectSelect{At: req.Timestamp, Filter: queryir.Conj(preds...)})
	if err != nil {
		return nil, storeError("query objects", "", err)
	}
	return objs, nil
}

// GetCommits returns the metadata of every commit whose key matches value,
// ascending by timestamp.
func (d *Database) GetCommits(ctx context.Context, key string, value any) ([]ir.CommitInfo, error) {
	return d.GetCommitsMatching(ctx, map[string]any{key: value})
}

// GetCommitsMatching returns the metadata of every commit matching all
// pairs. Keys are the ir.CommitKey* names; the timestamp key matches
// commits at or before the value.
func (d *Database) GetCommitsMatching(ctx context.Context, params map[string]any) ([]ir.CommitInfo, error) {
	filter, err := commitFilter(params)
	if err != nil {
		return nil, err
	}
	return d.selectCommits(ctx, queryir.CommitSelect{Filter: filter})
}

// GetCommitInfos runs a commit metadata query.
func (d *Database) GetCommitInfos(ctx context.Context, q ir.CommitQuery) ([]ir.CommitInfo, error) {
	if q.From < 0 || q.To < 0 || (q.To != 0 && q.From > q.To) {
		return nil, validationError("", "invalid timestamp window [%d, %d]", q.From, q.To)
	}
	var preds []queryir.Predicate
	if q.Committer != "" {
		preds = append(preds, queryir.FieldEquals{Field: ir.CommitKeyCommitter, Value: q.Committer})
	}
	if q.Context != "" {
		preds = append(preds, queryir.FieldEquals{Field: ir.CommitKeyContext, Value: q.Context})
	}
	if q.From != 0 || q.To != 0 {
		preds = append(preds, queryir.FieldRange{Field: ir.CommitKeyTimestamp, From: q.From, To: q.To})
	}
	return d.selectCommits(ctx, queryir.CommitSelect{Filter: queryir.Conj(preds...)})
}

// CommitRevisions returns the revision ids of every commit in timestamp
// order. A non-empty commitCtx restricts them to one context.
func (d *Database) CommitRevisions(ctx context.Context, commitCtx string) ([]string, error) {
	infos, err := d.GetCommitInfos(ctx, ir.CommitQuery{Context: commitCtx})
	if err != nil {
		return nil, err
	}
	revs := make([]string, len(infos))
	for i, info := range infos {
		revs[i] = info.Revision
	}
	return revs, nil
}

// GetCommit returns the commit with exactly timestamp t, with its object
// sets, or nil if there is none. Only backend failures are errors.
func (d *Database) GetCommit(ctx context.Context, t int64) (*ir.Commit, error) {
	c, err := d.store.CommitAt(ctx, t)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read commit", "", err)
	}
	return &c, nil
}

// CommitByRevision returns the commit with the given revision id.
// Returns ErrCodeNotFound if there is none.
func (d *Database) CommitByRevision(ctx context.Context, revision string) (ir.Commit, error) {
	c, err := d.store.CommitByRevision(ctx, revision)
	if err != nil {
		return ir.Commit{}, storeError("read commit "+revision, "", err)
	}
	return c, nil
}

// GetLastCommit returns the newest commit whose key matches value, or nil.
func (d *Database) GetLastCommit(ctx context.Context, key string, value any) (*ir.Commit, error) {
	return d.GetLastCommitMatching(ctx, map[string]any{key: value})
}

// GetLastCommitMatching returns the newest commit matching all pairs, with
// its object sets, or nil if none matches. Only invalid keys and backend
// failures are errors.
func (d *Database) GetLastCommitMatching(ctx context.Context, params map[string]any) (*ir.Commit, error) {
	filter, err := commitFilter(params)
	if err != nil {
		return nil, err
	}

	var out *ir.Commit
	err = d.store.View(ctx, func(r *store.Reader) error {
		infos, err := r.SelectCommits(ctx, queryir.CommitSelect{Filter: filter, Descending: true, Limit: 1})
		if err != nil || len(infos) == 0 {
			return err
		}
		c, err := r.CommitAt(ctx, infos[0].Timestamp)
		if err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, storeError("read last commit", "", err)
	}
	return out, nil
}

// LastRevisionOfContext returns the revision of the newest commit in
// commitCtx, or "" if that context has no commits.
func (d *Database) LastRevisionOfContext(ctx context.Context, commitCtx string) (string, error) {
	infos, err := d.selectCommits(ctx, queryir.CommitSelect{
		Filter:     queryir.FieldEquals{Field: ir.CommitKeyContext, Value: commitCtx},
		Descending: true,
		Limit:      1,
	})
	if err != nil || len(infos) == 0 {
		return "", err
	}
	return infos[0].Revision, nil
}

// StateOfLastCommitMatching returns the head as of the newest commit
// matching all pairs. Returns ErrCodeNotFound if no commit matches.
func (d *Database) StateOfLastCommitMatching(ctx context.Context, params map[string]any) ([]ir.Object, error) {
	filter, err := commitFilter(params)
	if err != nil {
		return nil, err
	}

	var state []ir.Object
	err = d.store.View(ctx, func(r *store.Reader) error {
		infos, err := r.SelectCommits(ctx, queryir.CommitSelect{Filter: filter, Descending: true, Limit: 1})
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			return notFoundError("", "no commit matches %v", params)
		}
		state, err = r.StateAt(ctx, infos[0].Timestamp)
		return err
	})
	if err != nil {
		return nil, asError("read state of last commit", err)
	}
	return state, nil
}

func (d *Database) selectCommits(ctx context.Context, q queryir.CommitSelect) ([]ir.CommitInfo, error) {
	infos, err := d.store.SelectCommits(ctx, q)
	if err != nil {
		return nil, storeError("query commits", "", err)
	}
	return infos, nil
}

// commitFilter turns commit predicate pairs into a filter. Unknown keys are
// rejected.
func commitFilter(params map[string]any) (queryir.Predicate, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	preds := make([]queryir.Predicate, 0, len(keys))
	for _, k := range keys {
		if !ir.ValidCommitKeys[k] {
			return nil, validationError("", "unknown commit key %q (want one of %s)", k, strings.Join(commitKeyNames(), ", "))
		}
		v := params[k]
		if k == ir.CommitKeyTimestamp {
			ts, err := toTimestamp(v)
			if err != nil {
				return nil, &Error{Code: ErrCodeValidation, Message: "timestamp predicate", Err: err}
			}
			if ts <= 0 {
				return nil, validationError("", "timestamp predicate must be positive, got %d", ts)
			}
			preds = append(preds, queryir.FieldRange{Field: k, To: ts})
			continue
		}
		preds = append(preds, queryir.FieldEquals{Field: k, Value: fmt.Sprint(v)})
	}
	return queryir.Conj(preds...), nil
}

func commitKeyNames() []string {
	names := make([]string, 0, len(ir.ValidCommitKeys))
	for k := range ir.ValidCommitKeys {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func toTimestamp(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case ir.IRInt:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("want an integer timestamp, got %T", v)
	}
}
