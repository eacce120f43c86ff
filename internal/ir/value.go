package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface representing attribute values.
// Only IRString, IRInt, IRBool, IRBytes, IRTime, IRArray and IRObject
// implement it. There is no float type.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// ValueType is the explicit type tag stored with every attribute entry.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInt64    ValueType = "int64"
	TypeBool     ValueType = "bool"
	TypeBytes    ValueType = "bytes"
	TypeDateTime ValueType = "datetime"
	TypeNested   ValueType = "nested"
	TypeList     ValueType = "list"
)

// ValidValueTypes lists the allowed type tags.
var ValidValueTypes = map[ValueType]bool{
	TypeString:   true,
	TypeInt64:    true,
	TypeBool:     true,
	TypeBytes:    true,
	TypeDateTime: true,
	TypeNested:   true,
	TypeList:     true,
}

// ParseValueType returns the ValueType named by s.
func ParseValueType(s string) (ValueType, error) {
	t := ValueType(strings.ToLower(strings.TrimSpace(s)))
	if !ValidValueTypes[t] {
		return "", fmt.Errorf("unknown value type %q", s)
	}
	return t, nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRBytes represents an opaque byte string.
type IRBytes []byte

func (IRBytes) irValue() {}

// IRTime represents a point in time. Stored in UTC with nanosecond precision.
type IRTime time.Time

func (IRTime) irValue() {}

// Time returns the underlying time.Time.
func (t IRTime) Time() time.Time {
	return time.Time(t)
}

// IRArray represents an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a nested map of string keys to values.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// NewIRBytes creates an IRBytes value holding a copy of b.
func NewIRBytes(b []byte) IRBytes {
	return IRBytes(bytes.Clone(b))
}

// NewIRTime creates an IRTime normalized to UTC.
func NewIRTime(t time.Time) IRTime {
	return IRTime(t.UTC())
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
// Example: NewIRObjectFromPairs(O("name", NewIRString("pump")), O("rev", NewIRInt(5)))
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// O is a shorthand for IRPair.
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// TypeOf returns the type tag of v, or "" for values outside the sealed set.
func TypeOf(v IRValue) ValueType {
	switch v.(type) {
	case IRString:
		return TypeString
	case IRInt:
		return TypeInt64
	case IRBool:
		return TypeBool
	case IRBytes:
		return TypeBytes
	case IRTime:
		return TypeDateTime
	case IRObject:
		return TypeNested
	case IRArray:
		return TypeList
	default:
		return ""
	}
}

// Equal reports whether a and b carry the same type tag and the same value.
// Nested values are compared recursively; list order matters.
func Equal(a, b IRValue) bool {
	if TypeOf(a) != TypeOf(b) {
		return false
	}
	switch av := a.(type) {
	case IRString:
		return av == b.(IRString)
	case IRInt:
		return av == b.(IRInt)
	case IRBool:
		return av == b.(IRBool)
	case IRBytes:
		return bytes.Equal(av, b.(IRBytes))
	case IRTime:
		return av.Time().Equal(b.(IRTime).Time())
	case IRArray:
		bv := b.(IRArray)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		return av.Equal(b.(IRObject))
	default:
		return false
	}
}

// Equal reports whether obj and other hold the same keys with Equal values.
func (obj IRObject) Equal(other IRObject) bool {
	if len(obj) != len(other) {
		return false
	}
	for k, v := range obj {
		ov, ok := other[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of obj.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v IRValue) IRValue {
	switch val := v.(type) {
	case IRBytes:
		return NewIRBytes(val)
	case IRArray:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	case IRObject:
		return val.Clone()
	default:
		return v
	}
}

// Validate checks that every value in obj belongs to the sealed set.
func (obj IRObject) Validate() error {
	for _, k := range obj.SortedKeys() {
		if k == "" {
			return fmt.Errorf("empty attribute key")
		}
		if err := validateValue(obj[k]); err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
	}
	return nil
}

func validateValue(v IRValue) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("missing value")
	case IRArray:
		for i, elem := range val {
			if err := validateValue(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case IRObject:
		return val.Validate()
	default:
		if TypeOf(v) == "" {
			return fmt.Errorf("unsupported value type %T", v)
		}
		return nil
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 order, which differs for non-BMP characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FormatValue renders v as a single display string. Scalars render as their
// natural text form; nested values and lists render as JSON.
func FormatValue(v IRValue) string {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return fmt.Sprintf("%d", int64(val))
	case IRBool:
		if val {
			return "true"
		}
		return "false"
	case IRBytes:
		return base64.StdEncoding.EncodeToString(val)
	case IRTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	default:
		data, err := MarshalIRValue(v)
		if err != nil {
			return fmt.Sprintf("<%T>", v)
		}
		return string(data)
	}
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is the plain (untagged) form used for display. Use MarshalTagged
// for storage and hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to plain JSON. Bytes become base64
// strings and times become RFC 3339 strings.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(val))
	case IRTime:
		return json.Marshal(val.Time().UTC().Format(time.RFC3339Nano))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue deserializes plain JSON into an IRValue, inferring type
// tags. Rejects floats and null.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromPlain(raw)
}

// FromPlain converts a decoded JSON/YAML value into an IRValue, inferring
// the type tag: strings, integers, booleans, maps and lists. time.Time and
// []byte map to IRTime and IRBytes. Null and floats are rejected.
func FromPlain(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are not allowed")
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not allowed: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	case time.Time:
		return NewIRTime(val), nil
	case []byte:
		return NewIRBytes(val), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromPlain converts a decoded map into an IRObject via FromPlain.
func ObjectFromPlain(m map[string]any) (IRObject, error) {
	obj := make(IRObject, len(m))
	for k, v := range m {
		val, err := FromPlain(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// Coerce converts a plain value to the declared type tag. Strings convert to
// datetime (RFC 3339) and bytes (base64); integers and booleans also accept
// their string forms.
func Coerce(v any, t ValueType) (IRValue, error) {
	if v == nil {
		return nil, fmt.Errorf("null values are not allowed")
	}
	switch t {
	case TypeString:
		if s, ok := v.(string); ok {
			return IRString(s), nil
		}
	case TypeInt64:
		if s, ok := v.(string); ok {
			return FromPlain(json.Number(strings.TrimSpace(s)))
		}
		if val, err := FromPlain(v); err == nil {
			if n, ok := val.(IRInt); ok {
				return n, nil
			}
		}
	case TypeBool:
		switch val := v.(type) {
		case bool:
			return IRBool(val), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "true":
				return IRBool(true), nil
			case "false":
				return IRBool(false), nil
			}
		}
	case TypeBytes:
		switch val := v.(type) {
		case []byte:
			return NewIRBytes(val), nil
		case string:
			b, err := base64.StdEncoding.DecodeString(val)
			if err != nil {
				return nil, fmt.Errorf("bytes: %w", err)
			}
			return IRBytes(b), nil
		}
	case TypeDateTime:
		switch val := v.(type) {
		case time.Time:
			return NewIRTime(val), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("datetime: %w", err)
			}
			return NewIRTime(ts), nil
		}
	case TypeNested:
		if m, ok := v.(map[string]any); ok {
			return ObjectFromPlain(m)
		}
	case TypeList:
		if l, ok := v.([]any); ok {
			return FromPlain(l)
		}
	default:
		return nil, fmt.Errorf("unknown value type %q", t)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, t)
}
