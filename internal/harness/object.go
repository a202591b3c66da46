package harness

import (
	"maps"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// object is a scenario receiver. Conditions read its fields through
// Field while scripts mutate them under the write lock.
type object struct {
	typ    string
	mu     sync.RWMutex
	fields map[string]any
}

func newObject(typ string, fields map[string]any) *object {
	f := make(map[string]any, len(fields))
	maps.Copy(f, fields)
	return &object{typ: typ, fields: f}
}

// Field implements enforce.Subject.
func (o *object) Field(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[name]
	return v, ok
}

// snapshot returns the fields in canonical form. Nil fields are left out.
func (o *object) snapshot() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any, len(o.fields))
	for k, v := range o.fields {
		if cv := canonicalValue(v); cv != nil {
			out[k] = cv
		}
	}
	return out
}

// canonicalValue converts a value to the forms canonical JSON accepts:
// integers become int64, whole floats become int64, other floats become
// their shortest decimal string, slices and string-keyed maps are
// converted element-wise. Nil stays nil; inside containers it becomes "null".
func canonicalValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string, bool, int64:
		return val
	case int:
		return int64(val)
	case float64:
		return canonicalFloat(val)
	case float32:
		return canonicalFloat(float64(val))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = orNull(canonicalValue(rv.Index(i).Interface()))
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = orNull(canonicalValue(iter.Value().Interface()))
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return canonicalValue(rv.Elem().Interface())
	}
	return "<" + reflect.TypeOf(v).String() + ">"
}

func canonicalFloat(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func orNull(v any) any {
	if v == nil {
		return "null"
	}
	return v
}

func canonicalSlice(values []any) []any {
	if len(values) == 0 {
		return nil
	}
	return canonicalValue(values).([]any)
}

func canonicalMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	return canonicalValue(values).(map[string]any)
}

// equalValues compares a value from scenario YAML with an observed value.
func equalValues(want, got any) bool {
	return reflect.DeepEqual(canonicalValue(want), canonicalValue(got))
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
