package edb

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/edb/internal/ir"
)

// CommitState is the lifecycle state of a Commit.
type CommitState int

const (
	// StateBuilding accepts Insert, Update and Delete.
	StateBuilding CommitState = iota + 1
	// StateCommitting is set while the commit is validated and persisted.
	StateCommitting
	// StateCommitted is terminal: the commit is durable.
	StateCommitted
	// StateFailed is terminal: nothing of the commit was persisted.
	StateFailed
)

func (s CommitState) String() string {
	switch s {
	case StateBuilding:
		return "BUILDING"
	case StateCommitting:
		return "COMMITTING"
	case StateCommitted:
		return "COMMITTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("CommitState(%d)", int(s))
	}
}

type pendingOp struct {
	kind ir.ChangeType
	obj  ir.Object
}

// Commit collects inserts, updates and deletes for one atomic write.
//
// Operations may be added in any order. Operations are keyed by OID: a later
// operation on an OID replaces the earlier one, whatever its kind.
type Commit struct {
	mu sync.Mutex

	info         ir.CommitInfo
	expectedHead string
	ops          map[string]pendingOp
	state        CommitState
	stored       ir.Commit
}

func newCommit(committer, commitCtx string) *Commit {
	return &Commit{
		info:  ir.CommitInfo{Committer: committer, Context: commitCtx},
		ops:   make(map[string]pendingOp),
		state: StateBuilding,
	}
}

func (c *Commit) add(kind ir.ChangeType, obj ir.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateBuilding {
		return &Error{Code: ErrCodeCommitState, Message: fmt.Sprintf("cannot %s into a %s commit", kind, c.state), OID: obj.OID}
	}
	c.ops[obj.OID] = pendingOp{kind: kind, obj: obj}
	return nil
}

// Insert adds a new object. The attributes are copied. A tombstone passed
// in, for example one taken from History, is inserted as a live object.
func (c *Commit) Insert(obj ir.Object) error {
	obj.Attributes = obj.Attributes.Clone()
	obj.Deleted = false
	return c.add(ir.ChangeInsert, obj)
}

// Update adds a new version of an existing object. A non-zero obj.Version
// is the model version the caller based the update on. Only Delete writes
// tombstones.
func (c *Commit) Update(obj ir.Object) error {
	obj.Attributes = obj.Attributes.Clone()
	obj.Deleted = false
	return c.add(ir.ChangeUpdate, obj)
}

// Delete marks oid as deleted.
func (c *Commit) Delete(oid string) error {
	return c.add(ir.ChangeDelete, ir.Object{OID: oid, Deleted: true})
}

// SetComment sets the free-text commit comment.
func (c *Commit) SetComment(comment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Comment = comment
}

func (c *Commit) setContext(commitCtx string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.Context = commitCtx
}

// SetConnector stamps the commit with the connector that produced it.
func (c *Commit) SetConnector(id ir.ConnectorID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info.DomainID = id.Domain
	c.info.ConnectorID = id.Connector
	c.info.InstanceID = id.Instance
}

// ExpectHead makes the commit fail with ErrCodeConflict unless revision is
// still the newest commit when it is persisted. Checked only when the
// database has revision checking enabled.
func (c *Commit) ExpectHead(revision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expectedHead = revision
}

// State returns the lifecycle state.
func (c *Commit) State() CommitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Committer returns the committer name.
func (c *Commit) Committer() string { return c.info.Committer }

// Context returns the commit context.
func (c *Commit) Context() string { return c.info.Context }

// Timestamp returns the assigned timestamp, or 0 before the commit is persisted.
func (c *Commit) Timestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored.Timestamp
}

// Revision returns the assigned revision id, or "" before the commit is persisted.
func (c *Commit) Revision() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored.Revision
}

// Stored returns the commit as persisted, with versions and digests.
func (c *Commit) Stored() ir.Commit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stored
}

// Inserts returns the pending inserts ordered by OID.
func (c *Commit) Inserts() []ir.Object { return c.objects(ir.ChangeInsert) }

// Updates returns the pending updates ordered by OID.
func (c *Commit) Updates() []ir.Object { return c.objects(ir.ChangeUpdate) }

// Deletes returns the pending deletes ordered by OID.
func (c *Commit) Deletes() []string {
	objs := c.objects(ir.ChangeDelete)
	oids := make([]string, len(objs))
	for i, o := range objs {
		oids[i] = o.OID
	}
	return oids
}

// Len returns the number of distinct OIDs in the commit.
func (c *Commit) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

func (c *Commit) objects(kind ir.ChangeType) []ir.Object {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []ir.Object{}
	for _, op := range c.ops {
		if op.kind == kind {
			out = append(out, op.obj)
		}
	}
	ir.SortObjects(out)
	return out
}

// transition moves the commit from one state to another.
func (c *Commit) transition(from, to CommitState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return &Error{Code: ErrCodeCommitState, Message: fmt.Sprintf("commit is %s, want %s", c.state, from)}
	}
	c.state = to
	return nil
}

func (c *Commit) fail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFailed
}

func (c *Commit) committed(stored ir.Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = stored
	c.state = StateCommitted
}

// validate checks every OID and attribute map.
func (c *Commit) validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info.Committer == "" {
		return validationError("", "commit has no committer")
	}
	if c.info.Context == "" {
		return validationError("", "commit has no context")
	}

	oids := make([]string, 0, len(c.ops))
	for oid := range c.ops {
		oids = append(oids, oid)
	}
	slices.Sort(oids)
	for _, oid := range oids {
		if err := ir.ValidateOID(oid); err != nil {
			return &Error{Code: ErrCodeValidation, Message: "invalid oid", OID: oid, Err: err}
		}
		op := c.ops[oid]
		if op.kind == ir.ChangeDelete {
			continue
		}
		if err := op.obj.Attributes.Validate(); err != nil {
			return &Error{Code: ErrCodeValidation, Message: "invalid attributes", OID: oid, Err: err}
		}
	}
	return nil
}

// toIR builds the store form of the pending commit.
func (c *Commit) toIR(ts int64, revision, parent string) ir.Commit {
	info := c.info
	info.Timestamp = ts
	info.Revision = revision
	info.Parent = parent
	return ir.Commit{
		CommitInfo: info,
		Inserts:    c.Inserts(),
		Updates:    c.Updates(),
		Deletes:    c.Deletes(),
	}
}
