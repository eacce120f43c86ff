package edb

import (
	"context"
	"errors"
	"math"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/store"
)

// BeginCommitHook runs first, before validation, while the commit is still
// BUILDING; it may add operations. An *Error aborts the commit.
type BeginCommitHook interface {
	OnBeginCommit(ctx context.Context, c *Commit) error
}

// PreCommitHook runs inside the commit critical section after validation.
// r reads the state the commit will apply to. An *Error or *CheckError hands
// the commit to the error hooks.
type PreCommitHook interface {
	OnPreCommit(ctx context.Context, r *store.Reader, c *Commit) error
}

// ErrorHook runs when a pre-commit hook rejected c. It may return a
// replacement commit, which is committed instead, or an *Error which
// replaces cause.
type ErrorHook interface {
	OnError(ctx context.Context, c *Commit, cause error) (*Commit, error)
}

// PostCommitHook runs after c is durable. Its errors are logged only.
type PostCommitHook interface {
	OnPostCommit(ctx context.Context, c *Commit) error
}

// Hooks groups the commit hooks in execution order.
type Hooks struct {
	Begin []BeginCommitHook
	Pre   []PreCommitHook
	Error []ErrorHook
	Post  []PostCommitHook
}

// ConflictCheckHook rejects commits that do not fit the current head:
// inserts of live OIDs, deletes of OIDs that are absent or deleted, and
// updates based on a stale model version whose attribute values differ from
// the head.
type ConflictCheckHook struct{}

// OnPreCommit implements PreCommitHook.
func (ConflictCheckHook) OnPreCommit(ctx context.Context, r *store.Reader, c *Commit) error {
	checkErr := &CheckError{}

	for _, obj := range c.Inserts() {
		_, live, err := headOf(ctx, r, obj.OID)
		if err != nil {
			return err
		}
		if live {
			checkErr.FailedInserts = append(checkErr.FailedInserts, obj)
		}
	}
	for _, oid := range c.Deletes() {
		_, live, err := headOf(ctx, r, oid)
		if err != nil {
			return err
		}
		if !live {
			checkErr.FailedDeletes = append(checkErr.FailedDeletes, oid)
		}
	}
	for _, obj := range c.Updates() {
		if obj.Version == 0 {
			continue
		}
		head, live, err := headOf(ctx, r, obj.OID)
		if err != nil {
			return err
		}
		if live && head.Version == obj.Version {
			continue
		}
		if !live || !sameValues(obj.Attributes, head.Attributes) {
			checkErr.FailedUpdates = append(checkErr.FailedUpdates, obj)
		}
	}

	if checkErr.empty() {
		return nil
	}
	return checkErr
}

// headOf returns the newest version of oid and whether it is live.
func headOf(ctx context.Context, r *store.Reader, oid string) (ir.Object, bool, error) {
	obj, err := r.ObjectAt(ctx, oid, math.MaxInt64)
	if errors.Is(err, store.ErrNotFound) {
		return ir.Object{}, false, nil
	}
	if err != nil {
		return ir.Object{}, false, storeError("read head", oid, err)
	}
	return obj, !obj.Deleted, nil
}

// sameValues reports whether every attribute of update holds the head's
// value for the same key.
func sameValues(update, head ir.IRObject) bool {
	for k, v := range update {
		hv, ok := head[k]
		if !ok || !ir.Equal(v, hv) {
			return false
		}
	}
	return true
}
