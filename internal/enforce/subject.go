package enforce

import (
	"maps"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// Subject exposes the readable fields of a receiver to conditions.
type Subject interface {
	Field(name string) (any, bool)
}

// Fields is a map-backed Subject. Scripted implementations mutate it directly.
type Fields map[string]any

// Field implements Subject.
func (f Fields) Field(name string) (any, bool) {
	v, ok := f[name]
	return v, ok
}

// Clone returns a copy of the field map.
func (f Fields) Clone() Fields {
	return maps.Clone(f)
}

// Reflect adapts a struct (or pointer to struct) to Subject.
//
// A condition name resolves to the struct field of that name, then to the
// field with the first letter upper-cased, then to a zero-argument method
// with a single result under either spelling. Only exported members are
// readable.
func Reflect(v any) Subject {
	return reflectSubject{v: reflect.ValueOf(v)}
}

type reflectSubject struct {
	v reflect.Value
}

func (s reflectSubject) Field(name string) (any, bool) {
	for _, n := range []string{name, exported(name)} {
		if v, ok := s.field(n); ok {
			return v, true
		}
		if v, ok := s.accessor(n); ok {
			return v, true
		}
	}
	return nil, false
}

func (s reflectSubject) field(name string) (any, bool) {
	v := s.v
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	sf, ok := v.Type().FieldByName(name)
	if !ok || !sf.IsExported() {
		return nil, false
	}
	return v.FieldByIndex(sf.Index).Interface(), true
}

func (s reflectSubject) accessor(name string) (any, bool) {
	if !s.v.IsValid() {
		return nil, false
	}
	m := s.v.MethodByName(name)
	if !m.IsValid() || m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return nil, false
	}
	return m.Call(nil)[0].Interface(), true
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
