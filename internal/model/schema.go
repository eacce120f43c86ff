// Package model loads CUE model schemas and converts connector payloads
// into typed objects.
//
// A model is declared under the top-level "model" struct:
//
//	model: Issue: {
//		key: "id"
//		fields: { id: "string", summary: "string", priority: "int64", due: "datetime" }
//	}
package model

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/edb/internal/ir"
)

// Schema declares the key attribute and attribute types of one model.
type Schema struct {
	Name   string
	Key    string
	Fields map[string]ir.ValueType
	Pos    token.Pos
}

// FieldNames returns the declared attribute keys, sorted.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// CompileSchema parses a CUE model struct into a Schema.
//
// The value should be the model struct itself:
//
//	v := ctx.CompileString(src)
//	s, err := CompileSchema(v.LookupPath(cue.ParsePath("model.Issue")))
func CompileSchema(v cue.Value) (*Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{Fields: make(map[string]ir.ValueType), Pos: v.Pos()}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		s.Name = labels[len(labels)-1].String()
	}

	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return nil, &CompileError{Field: "key", Message: "key is required", Pos: v.Pos()}
	}
	key, err := keyVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	s.Key = key

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("field %q: type must be a string naming a value type", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
		t, err := ir.ParseValueType(name)
		if err != nil {
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("field %q: %v", iter.Label(), err),
				Pos:     iter.Value().Pos(),
			}
		}
		s.Fields[iter.Label()] = t
	}

	if len(s.Fields) == 0 {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: v.Pos()}
	}
	if _, ok := s.Fields[s.Key]; !ok {
		return nil, &CompileError{Field: "key", Message: fmt.Sprintf("key %q is not a declared field", s.Key), Pos: keyVal.Pos()}
	}
	return s, nil
}

// CompileError is a schema error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
