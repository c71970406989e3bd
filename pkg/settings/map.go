package settings

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	ErrNotObject = errors.New("settings must be a JSON object")
)

// Map is an insertion ordered mapping from setting key to a JSON value.
// Values hold the types produced by JSON decoding: string, float64, bool,
// nil, []any and map[string]any.
type Map struct {
	keys   []string
	values map[string]any
}

func NewMap() *Map {
	return &Map{values: map[string]any{}}
}

// MapOf builds a Map from alternating key/value pairs.
func MapOf(pairs ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		m.Set(key, pairs[i+1])
	}
	return m
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Set updates key in place or appends it when new.
func (m *Map) Set(key string, value any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *Map) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns a copy of the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Clone returns a shallow copy.
func (m *Map) Clone() *Map {
	c := NewMap()
	if m == nil {
		return c
	}
	for _, k := range m.keys {
		c.Set(k, m.values[k])
	}
	return c
}

// Overlay returns a copy of m with every entry of o applied on top: existing
// keys keep their position, new keys are appended in o's order.
func (m *Map) Overlay(o *Map) *Map {
	c := m.Clone()
	if o == nil {
		return c
	}
	for _, k := range o.keys {
		c.Set(k, o.values[k])
	}
	return c
}

// ToMap converts to a plain map, dropping order.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the entries in order.
func (m *Map) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	if m != nil {
		for i, k := range m.keys {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(k)
			stream.WriteVal(m.values[k])
		}
	}
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, errors.Wrap(stream.Error, "failed to encode settings")
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// UnmarshalJSON reads a JSON object keeping the key order of the document.
// Duplicate keys keep their first position and the last value.
func (m *Map) UnmarshalJSON(data []byte) error {
	iter := json.BorrowIterator(data)
	defer json.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return ErrNotObject
	}

	fresh := NewMap()
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		fresh.Set(key, it.Read())
		return it.Error == nil
	})
	if iter.Error != nil {
		return errors.Wrap(iter.Error, "failed to decode settings")
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue {
		return errors.New("failed to decode settings: trailing data after object")
	}

	*m = *fresh
	return nil
}
