package enforce

import (
	"reflect"
)

// CaptureStore maps field names to their pre-call snapshots for one
// invocation. It is created on entry, filled before the underlying call,
// read by postconditions, and discarded on exit.
//
// A CaptureStore belongs to exactly one invocation and is not safe for
// concurrent use; it is never shared.
type CaptureStore struct {
	values    map[string]any
	discarded bool
}

// NewCaptureStore returns an empty store.
func NewCaptureStore() *CaptureStore {
	return &CaptureStore{values: make(map[string]any)}
}

// Capture stores a snapshot of v under field. The first capture of a field
// wins; later ones are ignored.
func (s *CaptureStore) Capture(field string, v any) {
	if s.discarded {
		return
	}
	if _, ok := s.values[field]; ok {
		return
	}
	s.values[field] = Snapshot(v)
}

// Lookup returns the snapshot captured for field.
func (s *CaptureStore) Lookup(field string) (any, bool) {
	v, ok := s.values[field]
	return v, ok
}

// Len returns the number of captured fields.
func (s *CaptureStore) Len() int {
	return len(s.values)
}

// Discard drops every snapshot. Lookups after Discard find nothing.
func (s *CaptureStore) Discard() {
	clear(s.values)
	s.discarded = true
}

// Snapshot copies v for old() capture.
//
// Scalars, strings, arrays, and structs are copied by value. Slices and maps
// get a shallow structural copy: a new container holding the same elements.
// Elements that are themselves pointers, slices, or maps stay shared, so
// mutating a nested element after capture is visible in the snapshot.
// Pointers, channels, and functions are shared as-is.
func Snapshot(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		cp := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		return cp.Interface()
	}
	return v
}
