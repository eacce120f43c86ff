package event

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/edb/internal/ir"
)

// Document is the YAML form of an event, as read from ingest files:
//
//	kind: batch
//	connector: cad+onshape+ws1
//	inserts:
//	  - model: Part
//	    attributes: { number: B-100, name: bracket }
//	deletes: [cad+onshape+ws1/B-099]
type Document struct {
	Kind   Kind `yaml:"kind"`
	Header `yaml:",inline"`

	// Models of an insert or update event.
	Models []ObjectDoc `yaml:"models,omitempty"`

	// OIDs of a delete event.
	OIDs []string `yaml:"oids,omitempty"`

	Inserts []ObjectDoc `yaml:"inserts,omitempty"`
	Updates []ObjectDoc `yaml:"updates,omitempty"`
	Deletes []string    `yaml:"deletes,omitempty"`
}

// ObjectDoc is one object of a Document. Either OID is given and attribute
// types are inferred, or Model names a schema that derives the OID and the
// types.
type ObjectDoc struct {
	OID        string         `yaml:"oid,omitempty"`
	Model      string         `yaml:"model,omitempty"`
	Version    int64          `yaml:"version,omitempty"`
	Attributes map[string]any `yaml:"attributes"`
}

// Converter turns a model payload into an object. *model.Registry
// implements it.
type Converter interface {
	Convert(name, connectorFullID string, payload map[string]any) (ir.Object, error)
}

// Event builds the typed event. conv may be nil when no object names a model.
func (d Document) Event(conv Converter) (Event, error) {
	switch d.Kind {
	case KindInsert:
		objs, err := ConvertObjects(conv, d.Connector, d.Models)
		return InsertEvent{Header: d.Header, Models: objs}, err
	case KindUpdate:
		objs, err := ConvertObjects(conv, d.Connector, d.Models)
		return UpdateEvent{Header: d.Header, Models: objs}, err
	case KindDelete:
		return DeleteEvent{Header: d.Header, OIDs: d.OIDs}, nil
	case KindBatch:
		inserts, err := ConvertObjects(conv, d.Connector, d.Inserts)
		if err != nil {
			return nil, err
		}
		updates, err := ConvertObjects(conv, d.Connector, d.Updates)
		if err != nil {
			return nil, err
		}
		return BatchEvent{Header: d.Header, Inserts: inserts, Updates: updates, Deletes: d.Deletes}, nil
	case "":
		return nil, errors.New("event kind is required")
	}
	return nil, fmt.Errorf("unknown event kind %q", d.Kind)
}

// ConvertObjects builds objects from their YAML form. Objects naming a model
// go through conv with the given connector id.
func ConvertObjects(conv Converter, connector string, docs []ObjectDoc) ([]ir.Object, error) {
	out := make([]ir.Object, 0, len(docs))
	for i, doc := range docs {
		var obj ir.Object
		switch {
		case doc.Model != "":
			if conv == nil {
				return nil, fmt.Errorf("object %d: model %s given but no models are loaded", i, doc.Model)
			}
			converted, err := conv.Convert(doc.Model, connector, doc.Attributes)
			if err != nil {
				return nil, fmt.Errorf("object %d: %w", i, err)
			}
			obj = converted
		case doc.OID != "":
			attrs, err := ir.ObjectFromPlain(doc.Attributes)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", doc.OID, err)
			}
			obj = ir.NewObject(doc.OID, attrs)
		default:
			return nil, fmt.Errorf("object %d needs an oid or a model", i)
		}
		obj.Version = doc.Version
		out = append(out, obj)
	}
	return out, nil
}

// DecodeDocuments reads a YAML stream of one or more event documents.
// Unknown fields are rejected.
func DecodeDocuments(r io.Reader) ([]Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var docs []Document
	for {
		var d Document
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, d)
	}
}
