// Package statecodec encodes and decodes structured state trees into a
// transport and storage safe textual form.
//
// The supported universe is a closed union: String, Number, Bool, Null,
// Sequence, Record, Map and Timestamp. Plain JSON collapses the
// map/record and timestamp/string distinctions, so Map and Timestamp are
// written as discriminated wrappers ($type "map" / "timestamp") while all
// other values pass through untouched. Decode reverses the wrapping at
// arbitrary depth.
package statecodec

import "time"

// Value is one node of a state tree. The set of implementations is
// closed; consumers dispatch with a type switch.
type Value interface {
	value()
}

type String string

type Number float64

type Bool bool

type Null struct{}

// Sequence is an ordered list of values.
type Sequence []Value

// Record is a string-keyed collection whose key order carries no meaning.
type Record map[string]Value

// Timestamp is an instant. It survives a codec round trip as a
// timestamp, not as a string, with sub-second precision intact.
type Timestamp time.Time

// Time builds a Timestamp normalized to UTC with the monotonic reading
// stripped, so staged and decoded values compare equal.
func Time(t time.Time) Timestamp {
	return Timestamp(t.UTC().Round(0))
}

// Time returns the instant the timestamp wraps.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Entry is a single key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Map is a dictionary with arbitrary keys and stable insertion order.
// Unlike Record, its map-ness and entry order survive a codec round trip.
type Map struct {
	entries []Entry
}

// NewMap builds a map from the given entries, preserving their order.
func NewMap(entries ...Entry) *Map {
	m := &Map{}
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

// Set inserts or replaces the value for key. A replaced key keeps its
// original position.
func (m *Map) Set(key, val Value) {
	for i, e := range m.entries {
		if Equal(e.Key, key) {
			m.entries[i].Value = val
			return
		}
	}
	m.entries = append(m.entries, Entry{Key: key, Value: val})
}

// Get returns the value for key and whether it is present.
func (m *Map) Get(key Value) (Value, bool) {
	for _, e := range m.entries {
		if Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Entries returns the pairs in insertion order. The slice is shared;
// callers must not mutate it.
func (m *Map) Entries() []Entry {
	return m.entries
}

func (String) value()    {}
func (Number) value()    {}
func (Bool) value()      {}
func (Null) value()      {}
func (Sequence) value()  {}
func (Record) value()    {}
func (Timestamp) value() {}
func (*Map) value()      {}

// Equal reports deep equality of two values. Sequences and map entry
// order are significant; record key order is not. Timestamps compare by
// instant.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	case Timestamp:
		bv, ok := b.(Timestamp)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Sequence:
		bv, ok := b.(Sequence)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for i, e := range av.entries {
			o := bv.entries[i]
			if !Equal(e.Key, o.Key) || !Equal(e.Value, o.Value) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}
