// Package payload models semi-structured event data as a tagged variant tree.
//
// Event payloads arrive as arbitrary JSON documents. Rather than decoding them
// into map[string]any and walking them with type assertions, every node is a
// Value carrying an explicit Kind. Mappings keep their keys in document order
// so that textual flattening is stable across a decode/encode round trip.
package payload

import (
	"encoding/json"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one key/value pair of a mapping.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable node of a payload tree. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	text    string
	items   []Value
	members []Member
	index   map[string]int
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number returns a numeric value. The literal is kept verbatim.
func Number(n json.Number) Value { return Value{kind: KindNumber, number: n} }

// Int returns a numeric value for n.
func Int(n int64) Value { return Number(json.Number(strconv.FormatInt(n, 10))) }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Sequence returns a sequence holding items in order.
func Sequence(items ...Value) Value {
	out := make([]Value, len(items))
	copy(out, items)
	return Value{kind: KindSequence, items: out}
}

// Field is shorthand for building a Member.
func Field(key string, v Value) Member { return Member{Key: key, Value: v} }

// Mapping returns a mapping holding members in order. A repeated key keeps the
// position of its first occurrence and the value of its last.
func Mapping(members ...Member) Value {
	v := Value{kind: KindMapping, members: make([]Member, 0, len(members)), index: make(map[string]int, len(members))}
	for _, m := range members {
		v.set(m.Key, m.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	if i, ok := v.index[key]; ok {
		v.members[i].Value = val
		return
	}
	v.index[key] = len(v.members)
	v.members = append(v.members, Member{Key: key, Value: val})
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMapping reports whether v is a mapping.
func (v Value) IsMapping() bool { return v.kind == KindMapping }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBool }

// AsNumber returns the numeric literal held by v.
func (v Value) AsNumber() (json.Number, bool) { return v.number, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.text, v.kind == KindString }

// Items returns the elements of a sequence, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.items
}

// Members returns the members of a mapping in document order, or nil.
func (v Value) Members() []Member {
	if v.kind != KindMapping {
		return nil
	}
	return v.members
}

// Len returns the number of elements of a sequence or members of a mapping.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.members)
	default:
		return 0
	}
}

// Get looks up key in a mapping. It reports false for a missing key or when v
// is not a mapping.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	i, ok := v.index[key]
	if !ok {
		return Value{}, false
	}
	return v.members[i].Value, true
}

// With returns a copy of the mapping v with key set to val. Calling With on a
// non-mapping starts from an empty mapping.
func (v Value) With(key string, val Value) Value {
	out := Value{kind: KindMapping, members: make([]Member, 0, len(v.members)+1), index: make(map[string]int, len(v.members)+1)}
	for _, m := range v.Members() {
		out.set(m.Key, m.Value)
	}
	out.set(key, val)
	return out
}
