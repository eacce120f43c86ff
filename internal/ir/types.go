package ir

import "slices"

// Object is an immutable snapshot of one entity as of one commit.
// A tombstone is an Object with Deleted set and no attributes.
type Object struct {
	OID        string   `json:"oid"`
	Attributes IRObject `json:"attributes"`
	Timestamp  int64    `json:"timestamp"`         // Commit timestamp that produced this snapshot
	Version    int64    `json:"version"`           // Model version: position in the OID's chain, starting at 1
	Deleted    bool     `json:"deleted,omitempty"` // Tombstone marker
	Digest     string   `json:"digest,omitempty"`  // ObjectDigest of Attributes
}

// NewObject creates an uncommitted object with the given attributes.
func NewObject(oid string, attrs IRObject) Object {
	if attrs == nil {
		attrs = IRObject{}
	}
	return Object{OID: oid, Attributes: attrs}
}

// Get returns the attribute value for key.
func (o Object) Get(key string) (IRValue, bool) {
	v, ok := o.Attributes[key]
	return v, ok
}

// String returns the attribute as a string if it is an IRString.
func (o Object) String(key string) string {
	if s, ok := o.Attributes[key].(IRString); ok {
		return string(s)
	}
	return ""
}

// ChangeType classifies one change in an OID's history.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// CommitInfo is the metadata of a commit without its object sets.
type CommitInfo struct {
	Timestamp   int64  `json:"timestamp"`
	Revision    string `json:"revision"`
	Parent      string `json:"parent,omitempty"`
	Committer   string `json:"committer"`
	Context     string `json:"context"`
	Comment     string `json:"comment,omitempty"`
	DomainID    string `json:"domain_id,omitempty"`
	ConnectorID string `json:"connector_id,omitempty"`
	InstanceID  string `json:"instance_id,omitempty"`
}

// Commit metadata keys accepted by commit predicates.
const (
	CommitKeyTimestamp   = "timestamp" // matches commits at or before the value
	CommitKeyRevision    = "revision"
	CommitKeyParent      = "parent"
	CommitKeyCommitter   = "committer"
	CommitKeyContext     = "context"
	CommitKeyComment     = "comment"
	CommitKeyDomainID    = "domain_id"
	CommitKeyConnectorID = "connector_id"
	CommitKeyInstanceID  = "instance_id"
)

// ValidCommitKeys lists the keys accepted by commit predicates.
var ValidCommitKeys = map[string]bool{
	CommitKeyTimestamp:   true,
	CommitKeyRevision:    true,
	CommitKeyParent:      true,
	CommitKeyCommitter:   true,
	CommitKeyContext:     true,
	CommitKeyComment:     true,
	CommitKeyDomainID:    true,
	CommitKeyConnectorID: true,
	CommitKeyInstanceID:  true,
}

// Commit is an accepted, immutable set of changes plus its metadata.
type Commit struct {
	CommitInfo
	Inserts []Object `json:"inserts"`
	Updates []Object `json:"updates"`
	Deletes []string `json:"deletes"`
}

// OIDs returns every OID the commit touched, sorted.
func (c Commit) OIDs() []string {
	oids := make([]string, 0, len(c.Inserts)+len(c.Updates)+len(c.Deletes))
	for _, o := range c.Inserts {
		oids = append(oids, o.OID)
	}
	for _, o := range c.Updates {
		oids = append(oids, o.OID)
	}
	oids = append(oids, c.Deletes...)
	slices.Sort(oids)
	return slices.Compact(oids)
}

// LogEntry is one discrete change of one OID.
type LogEntry struct {
	OID       string     `json:"oid"`
	Timestamp int64      `json:"timestamp"`
	Change    ChangeType `json:"change"`
	Commit    CommitInfo `json:"commit"`
	Object    Object     `json:"object"`
}

// QueryRequest selects objects by attribute values as of a timestamp.
// A zero Timestamp means the current head.
type QueryRequest struct {
	Params          map[string]IRValue `json:"params"`
	Timestamp       int64              `json:"timestamp,omitempty"`
	CaseInsensitive bool               `json:"case_insensitive,omitempty"`
	Wildcard        bool               `json:"wildcard,omitempty"` // % and _ in string params match like SQL LIKE
}

// CommitQuery selects commit metadata. Empty fields and zero bounds match
// everything; From and To are inclusive.
type CommitQuery struct {
	Committer string `json:"committer,omitempty"`
	Context   string `json:"context,omitempty"`
	From      int64  `json:"from,omitempty"`
	To        int64  `json:"to,omitempty"`
}
