package event

import "github.com/roach88/edb/internal/ir"

// Kind names an event type. It labels metrics and log lines.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindBatch  Kind = "batch"
)

// Header carries the fields shared by every event.
type Header struct {
	// Connector is the full connector id "domainType+connectorType+instanceId".
	Connector string `json:"connector" yaml:"connector"`

	// Committer defaults to Connector.
	Committer string `json:"committer,omitempty" yaml:"committer,omitempty"`

	// Context defaults to the domain type of Connector.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// HeadRevision, when set on a database with revision checking, makes the
	// event fail unless it is still the newest commit.
	HeadRevision string `json:"head_revision,omitempty" yaml:"head_revision,omitempty"`
}

// Event is a sealed interface over the four event types.
type Event interface {
	Kind() Kind
	header() Header
}

// InsertEvent adds new objects.
type InsertEvent struct {
	Header
	Models []ir.Object `json:"models"`
}

// UpdateEvent adds new versions of existing objects.
type UpdateEvent struct {
	Header
	Models []ir.Object `json:"models"`
}

// DeleteEvent deletes objects by OID.
type DeleteEvent struct {
	Header
	OIDs []string `json:"oids"`
}

// BatchEvent carries inserts, updates and deletes that must land in one commit.
type BatchEvent struct {
	Header
	Inserts []ir.Object `json:"inserts"`
	Updates []ir.Object `json:"updates"`
	Deletes []string    `json:"deletes"`
}

func (InsertEvent) Kind() Kind { return KindInsert }
func (UpdateEvent) Kind() Kind { return KindUpdate }
func (DeleteEvent) Kind() Kind { return KindDelete }
func (BatchEvent) Kind() Kind  { return KindBatch }

func (e InsertEvent) header() Header { return e.Header }
func (e UpdateEvent) header() Header { return e.Header }
func (e DeleteEvent) header() Header { return e.Header }
func (e BatchEvent) header() Header  { return e.Header }

// ops flattens any event into the three operation sets.
func ops(ev Event) (inserts, updates []ir.Object, deletes []string) {
	switch e := ev.(type) {
	case InsertEvent:
		return e.Models, nil, nil
	case UpdateEvent:
		return nil, e.Models, nil
	case DeleteEvent:
		return nil, nil, e.OIDs
	case BatchEvent:
		return e.Inserts, e.Updates, e.Deletes
	}
	return nil, nil, nil
}
