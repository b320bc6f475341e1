package graph

import (
	"maps"
	"slices"
)

// DataKey names an annotation in a [Data] bag.
type DataKey string

// Annotation keys used by the collector and the conflict resolver.
const (
	KeyState         DataKey = "collect.state"
	KeyCycle         DataKey = "collect.cycle"
	KeyConflictGroup DataKey = "conflict.group"
	KeyWinner        DataKey = "conflict.winner"
)

// Data is a lazily allocated key/value side table. The zero value is empty
// and ready to use.
type Data struct {
	m map[DataKey]any
}

// Set stores value under key. A nil value removes the key; removing the last
// key releases the map. An empty key is a contract violation and panics.
func (d *Data) Set(key DataKey, value any) {
	if key == "" {
		panic("graph: data key must not be empty")
	}
	if value == nil {
		d.Delete(key)
		return
	}
	if d.m == nil {
		d.m = make(map[DataKey]any, 2)
	}
	d.m[key] = value
}

// Delete removes key if present.
func (d *Data) Delete(key DataKey) {
	if d.m == nil {
		return
	}
	delete(d.m, key)
	if len(d.m) == 0 {
		d.m = nil
	}
}

// Get returns the value stored under key.
func (d Data) Get(key DataKey) (any, bool) {
	v, ok := d.m[key]
	return v, ok
}

// Len returns the number of annotations.
func (d Data) Len() int { return len(d.m) }

// Allocated reports whether the bag currently holds a map.
func (d Data) Allocated() bool { return d.m != nil }

// Keys returns the annotation keys in sorted order.
func (d Data) Keys() []DataKey {
	return slices.Sorted(maps.Keys(d.m))
}

// Lookup returns the value under key if it exists and has type T.
func Lookup[T any](d Data, key DataKey) (T, bool) {
	v, ok := d.m[key]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
