package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attribute names managed by the gateway. They are part of the table's
// external contract and must not change.
const (
	AttrPK      = "PK"
	AttrSK      = "SK"
	AttrParent  = "parent"
	AttrVersion = "version"
	AttrTTL     = "ttl"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	// KindAbsent is the zero Kind: the attribute is not present.
	KindAbsent Kind = iota
	KindString
	KindNumber
	// KindUnsupported marks an attribute the gateway read but cannot
	// represent (lists, maps, sets, booleans, binary).
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	}
	return "unsupported"
}

// Value is a single attribute value: a string, a number, or absent.
type Value struct {
	kind Kind
	s    string
	n    int64
}

// S returns a string Value.
func S(v string) Value { return Value{kind: KindString, s: v} }

// N returns a number Value.
func N(v int64) Value { return Value{kind: KindNumber, n: v} }

// Unsupported returns a Value for an attribute of an unrepresentable type.
func Unsupported() Value { return Value{kind: KindUnsupported} }

// Kind returns the type held by v.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (int64, bool) { return v.n, v.kind == KindNumber }

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindNumber:
		return strconv.FormatInt(v.n, 10)
	}
	return "<" + v.kind.String() + ">"
}

// wireValue is the JSON form of a Value, shaped like DynamoDB JSON.
type wireValue struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
}

// MarshalJSON encodes v as {"S": "..."} or {"N": "..."}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(wireValue{S: &v.s})
	case KindNumber:
		n := strconv.FormatInt(v.n, 10)
		return json.Marshal(wireValue{N: &n})
	}
	return nil, fmt.Errorf("store: cannot encode %s value", v.kind)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.S != nil:
		*v = S(*w.S)
	case w.N != nil:
		n, err := strconv.ParseInt(*w.N, 10, 64)
		if err != nil {
			return fmt.Errorf("store: number %q: %w", *w.N, err)
		}
		*v = N(n)
	default:
		*v = Unsupported()
	}
	return nil
}

// Item is a flat attribute map, the table's native storage unit.
type Item map[string]Value

// Get returns the named attribute, or an absent Value.
func (it Item) Get(name string) Value { return it[name] }

// Key returns the primary key of the item.
func (it Item) Key() Key {
	pk, _ := it[AttrPK].AsString()
	sk, _ := it[AttrSK].AsString()
	return Key{Partition: pk, Sort: sk}
}

// Clone returns a shallow copy of the item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// StringAttr returns a required string attribute.
func (it Item) StringAttr(name string) (string, error) {
	v := it[name]
	s, ok := v.AsString()
	if !ok {
		return "", it.malformed(name, KindString, v.kind)
	}
	return s, nil
}

// NumberAttr returns a required number attribute.
func (it Item) NumberAttr(name string) (int64, error) {
	v := it[name]
	n, ok := v.AsNumber()
	if !ok {
		return 0, it.malformed(name, KindNumber, v.kind)
	}
	return n, nil
}

// OptionalStringAttr returns a string attribute, or def when it is absent.
// A present attribute of another type is still malformed.
func (it Item) OptionalStringAttr(name, def string) (string, error) {
	if it[name].kind == KindAbsent {
		return def, nil
	}
	return it.StringAttr(name)
}

// OptionalNumberAttr returns a number attribute, or def when it is absent.
func (it Item) OptionalNumberAttr(name string, def int64) (int64, error) {
	if it[name].kind == KindAbsent {
		return def, nil
	}
	return it.NumberAttr(name)
}

func (it Item) malformed(name string, want, got Kind) error {
	return &MalformedItemError{Key: it.Key(), Attr: name, Want: want, Got: got}
}
