package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping
//  3. Strings and keys are NFC normalized
//  4. Floats and null are rejected
//
// IRBytes and IRTime marshal as strings; use MarshalTagged when the type
// tag must survive.
func MarshalCanonical(v any) ([]byte, error) {
	return encoder{nfc: true}.marshal(v)
}

// encoder writes canonical JSON. With nfc unset, strings and keys are
// written byte for byte.
type encoder struct {
	nfc bool
}

func (e encoder) marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case IRString:
		return e.str(string(val))
	case string:
		return e.str(val)
	case IRInt:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case IRBool:
		return marshalBool(bool(val)), nil
	case bool:
		return marshalBool(val), nil
	case IRBytes:
		return e.str(base64.StdEncoding.EncodeToString(val))
	case IRTime:
		return e.str(val.Time().UTC().Format(time.RFC3339Nano))
	case IRArray:
		return e.array(val)
	case IRObject:
		return e.object(val)
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// str produces a JSON string. Only control characters, backslash and quote
// are escaped.
func (e encoder) str(s string) ([]byte, error) {
	if e.nfc {
		s = norm.NFC.String(s)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeLineSeparators(result), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// run of backslashes is literal text and stays as is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			run := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				run++
			}
			if run%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func (e encoder) array(arr IRArray) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := e.marshal(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// object writes members ordered by their written key. Under NFC two keys
// may normalize to the same text; they stay separate members, ordered by
// their original form.
func (e encoder) object(obj IRObject) ([]byte, error) {
	type member struct{ key, raw string }
	members := make([]member, 0, len(obj))
	for k := range obj {
		written := k
		if e.nfc {
			written = norm.NFC.String(k)
		}
		members = append(members, member{key: written, raw: k})
	}
	slices.SortFunc(members, func(a, b member) int {
		if c := compareKeysRFC8785(a.key, b.key); c != 0 {
			return c
		}
		return compareKeysRFC8785(a.raw, b.raw)
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := e.str(m.raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", m.raw, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := e.marshal(obj[m.raw])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", m.raw, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Tagged form: every value is written as {"t":<type>,"v":<payload>}.
// Nested objects and lists hold tagged children.

// MarshalTagged produces the tagged JSON of an attribute map. It is the
// storage format: keys are sorted canonically but strings and keys are kept
// byte for byte, so UnmarshalTagged returns exactly the map that was written.
func MarshalTagged(obj IRObject) ([]byte, error) {
	return marshalTagged(encoder{}, obj)
}

// canonicalTagged is MarshalTagged with NFC normalization, the input to
// ObjectDigest.
func canonicalTagged(obj IRObject) ([]byte, error) {
	return marshalTagged(encoder{nfc: true}, obj)
}

func marshalTagged(e encoder, obj IRObject) ([]byte, error) {
	if obj == nil {
		obj = IRObject{}
	}
	tagged, err := taggedForm(obj)
	if err != nil {
		return nil, err
	}
	return e.marshal(tagged.(IRObject)["v"])
}

func taggedForm(v IRValue) (IRValue, error) {
	t := TypeOf(v)
	if t == "" {
		return nil, fmt.Errorf("unsupported value type %T", v)
	}

	var payload IRValue
	switch val := v.(type) {
	case IRBytes:
		payload = IRString(base64.StdEncoding.EncodeToString(val))
	case IRTime:
		payload = IRString(val.Time().UTC().Format(time.RFC3339Nano))
	case IRArray:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			te, err := taggedForm(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = te
		}
		payload = arr
	case IRObject:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			te, err := taggedForm(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = te
		}
		payload = obj
	default:
		payload = v
	}

	return IRObject{"t": IRString(t), "v": payload}, nil
}

type taggedValue struct {
	T ValueType       `json:"t"`
	V json.RawMessage `json:"v"`
}

// UnmarshalTagged decodes an attribute map written by MarshalTagged.
func UnmarshalTagged(data []byte) (IRObject, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	obj := make(IRObject, len(raw))
	for k, v := range raw {
		val, err := UnmarshalTaggedValue(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

// UnmarshalTaggedValue decodes one {"t","v"} value.
func UnmarshalTaggedValue(data []byte) (IRValue, error) {
	var tv taggedValue
	if err := json.Unmarshal(data, &tv); err != nil {
		return nil, err
	}

	switch tv.T {
	case TypeString:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil
	case TypeInt64:
		var n int64
		if err := json.Unmarshal(tv.V, &n); err != nil {
			return nil, err
		}
		return IRInt(n), nil
	case TypeBool:
		var b bool
		if err := json.Unmarshal(tv.V, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil
	case TypeBytes:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return IRBytes(b), nil
	case TypeDateTime:
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return NewIRTime(ts), nil
	case TypeList:
		var raw []json.RawMessage
		if err := json.Unmarshal(tv.V, &raw); err != nil {
			return nil, err
		}
		arr := make(IRArray, len(raw))
		for i, elem := range raw {
			val, err := UnmarshalTaggedValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = val
		}
		return arr, nil
	case TypeNested:
		return UnmarshalTagged(tv.V)
	default:
		return nil, fmt.Errorf("unknown type tag %q", tv.T)
	}
}
