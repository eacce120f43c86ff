package model

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/edb/internal/ir"
)

// Registry holds compiled model schemas by name.
// It is read-only after loading and safe for concurrent use.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry returns a registry over the given schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Name] = s
	}
	return r
}

// LoadDir loads every .cue file of dir as one CUE instance and compiles the
// models it declares. All schema errors are collected; the registry holds
// the models that compiled.
func LoadDir(dir string) (*Registry, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("models directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, []error{err}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded from %s", dir)}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, []error{fmt.Errorf("loading CUE files: %w", inst.Err)}
	}

	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileModels(value)
}

// LoadString compiles models from CUE source. Used by tests and by
// callers that embed their schemas.
func LoadString(src string) (*Registry, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileModels(value)
}

func compileModels(value cue.Value) (*Registry, []error) {
	r := NewRegistry()

	models := value.LookupPath(cue.ParsePath("model"))
	if !models.Exists() {
		return r, []error{fmt.Errorf("no models declared")}
	}
	iter, err := models.Fields()
	if err != nil {
		return r, []error{formatCUEError(err)}
	}

	var errs []error
	for iter.Next() {
		s, err := CompileSchema(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("model.%s: %w", iter.Label(), err))
			continue
		}
		r.schemas[s.Name] = s
	}
	return r, errs
}

// Get returns the schema of a model.
func (r *Registry) Get(name string) (*Schema, bool) {
	if r == nil {
		return nil, false
	}
	s, ok := r.schemas[name]
	return s, ok
}

// Names returns the model names, sorted.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Convert turns a connector payload into an uncommitted object. The OID is
// the connector id joined with the payload's key value. Attributes take the
// declared types of the model; a model without a schema infers them from
// the payload and keys on "id".
func (r *Registry) Convert(name, connectorFullID string, payload map[string]any) (ir.Object, error) {
	conn, err := ir.ParseConnectorID(connectorFullID)
	if err != nil {
		return ir.Object{}, err
	}

	schema, ok := r.Get(name)
	if !ok {
		attrs, err := ir.ObjectFromPlain(payload)
		if err != nil {
			return ir.Object{}, fmt.Errorf("model %s: %w", name, err)
		}
		return objectFor(conn, "id", attrs)
	}

	attrs := make(ir.IRObject, len(payload))
	for k, raw := range payload {
		t, declared := schema.Fields[k]
		if !declared {
			return ir.Object{}, fmt.Errorf("model %s: undeclared field %q", name, k)
		}
		v, err := ir.Coerce(raw, t)
		if err != nil {
			return ir.Object{}, fmt.Errorf("model %s: field %q: %w", name, k, err)
		}
		attrs[k] = v
	}
	return objectFor(conn, schema.Key, attrs)
}

func objectFor(conn ir.ConnectorID, key string, attrs ir.IRObject) (ir.Object, error) {
	keyVal, ok := attrs[key]
	if !ok {
		return ir.Object{}, fmt.Errorf("payload has no key attribute %q", key)
	}
	local := ir.FormatValue(keyVal)
	if local == "" {
		return ir.Object{}, fmt.Errorf("key attribute %q is empty", key)
	}
	obj := ir.NewObject(conn.OID(local), attrs)
	if err := ir.ValidateOID(obj.OID); err != nil {
		return ir.Object{}, err
	}
	return obj, nil
}
