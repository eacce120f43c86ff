package store

import (
	"fmt"

	"github.com/roach88/edb/internal/ir"
)

// entryRow is one queryable attribute entry of a live version.
type entryRow struct {
	key   string
	typ   ir.ValueType
	value string
}

// marshalAttrs converts attributes to tagged canonical JSON TEXT for storage.
// The type tag of every value survives the round trip.
func marshalAttrs(attrs ir.IRObject) (string, error) {
	if attrs == nil {
		attrs = ir.IRObject{}
	}
	data, err := ir.MarshalTagged(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses tagged canonical JSON TEXT back into attributes.
func unmarshalAttrs(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	obj, err := ir.UnmarshalTagged([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return obj, nil
}

// entriesOf flattens top-level attributes into query entries, in canonical
// key order. Values are stored in their display form next to their tag.
func entriesOf(attrs ir.IRObject) []entryRow {
	rows := make([]entryRow, 0, len(attrs))
	for _, k := range attrs.SortedKeys() {
		v := attrs[k]
		rows = append(rows, entryRow{key: k, typ: ir.TypeOf(v), value: ir.FormatValue(v)})
	}
	return rows
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
