package statecodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// typeKey discriminates wrapped values. It is reserved: records may not
// carry it as an ordinary key.
const typeKey = "$type"

const (
	typeMap       = "map"
	typeTimestamp = "timestamp"
)

// SerializationError reports text that could not be decoded into the
// supported universe, or a tree that cannot be written without ambiguity.
// The payload must be treated as unreadable; no partial result is
// returned alongside it.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("statecodec: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

func serErr(format string, args ...any) error {
	return &SerializationError{Cause: fmt.Errorf(format, args...)}
}

// Encode writes v as JSON text. The output is canonical: record keys are
// sorted, so encoding the same tree twice yields byte-identical text.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return serErr("encode: nil value")
	case Null:
		buf.WriteString("null")
	case String:
		return encodeScalar(buf, string(val))
	case Number:
		return encodeScalar(buf, float64(val))
	case Bool:
		return encodeScalar(buf, bool(val))
	case Timestamp:
		buf.WriteString(`{"` + typeKey + `":"` + typeTimestamp + `","value":`)
		if err := encodeScalar(buf, time.Time(val).UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Sequence:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Record:
		keys := make([]string, 0, len(val))
		for k := range val {
			if k == typeKey {
				return serErr("encode: record key %q is reserved", typeKey)
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case *Map:
		buf.WriteString(`{"` + typeKey + `":"` + typeMap + `","entries":[`)
		for i, e := range val.Entries() {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteByte('[')
			if err := encodeValue(buf, e.Key); err != nil {
				return err
			}
			buf.WriteByte(',')
			if err := encodeValue(buf, e.Value); err != nil {
				return err
			}
			buf.WriteByte(']')
		}
		buf.WriteString(`]}`)
	default:
		return serErr("encode: unsupported value %T", v)
	}
	return nil
}

func encodeScalar(buf *bytes.Buffer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return serErr("encode: %v", err)
	}
	buf.Write(b)
	return nil
}

// Decode parses text produced by Encode back into a value tree. Wrapped
// maps decode as *Map and wrapped timestamps as Timestamp; everything
// else decodes structurally. Malformed or truncated text yields a
// *SerializationError.
func Decode(data []byte) (Value, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, serErr("decode: %v", err)
	}
	return decodeRaw(raw)
}

func decodeRaw(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, serErr("decode: empty value")
	}
	switch trimmed[0] {
	case '{':
		return decodeObject(raw)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, serErr("decode: %v", err)
		}
		seq := make(Sequence, len(items))
		for i, it := range items {
			v, err := decodeRaw(it)
			if err != nil {
				return nil, err
			}
			seq[i] = v
		}
		return seq, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, serErr("decode: %v", err)
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, serErr("decode: %v", err)
		}
		return Bool(b), nil
	case 'n':
		return Null{}, nil
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, serErr("decode: %v", err)
		}
		return Number(f), nil
	}
}

func decodeObject(raw json.RawMessage) (Value, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, serErr("decode: %v", err)
	}

	tagged, ok := fields[typeKey]
	if !ok {
		rec := make(Record, len(fields))
		for k, rv := range fields {
			v, err := decodeRaw(rv)
			if err != nil {
				return nil, err
			}
			rec[k] = v
		}
		return rec, nil
	}

	var tag string
	if err := json.Unmarshal(tagged, &tag); err != nil {
		return nil, serErr("decode: %s is not a string: %v", typeKey, err)
	}

	switch tag {
	case typeTimestamp:
		rv, ok := fields["value"]
		if !ok {
			return nil, serErr("decode: timestamp wrapper without value")
		}
		var s string
		if err := json.Unmarshal(rv, &s); err != nil {
			return nil, serErr("decode: timestamp value: %v", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, serErr("decode: timestamp %q: %v", s, err)
		}
		return Time(t), nil
	case typeMap:
		rv, ok := fields["entries"]
		if !ok {
			return nil, serErr("decode: map wrapper without entries")
		}
		var pairs [][]json.RawMessage
		if err := json.Unmarshal(rv, &pairs); err != nil {
			return nil, serErr("decode: map entries: %v", err)
		}
		m := &Map{}
		for _, p := range pairs {
			if len(p) != 2 {
				return nil, serErr("decode: map entry has %d elements, want 2", len(p))
			}
			k, err := decodeRaw(p[0])
			if err != nil {
				return nil, err
			}
			v, err := decodeRaw(p[1])
			if err != nil {
				return nil, err
			}
			m.Set(k, v)
		}
		return m, nil
	default:
		return nil, serErr("decode: unknown %s %q", typeKey, tag)
	}
}
