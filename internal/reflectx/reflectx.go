// Package reflectx holds the reflection helpers shared by the codec facades.
package reflectx

import "reflect"

// Deref strips pointer levels from t.
func Deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Indirect follows pointers from v. ok is false when a nil pointer is met.
func Indirect(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, true
}

// Assign stores v into the settable dst, allocating pointers between them.
// An invalid v zeroes dst.
func Assign(dst, v reflect.Value) {
	if !v.IsValid() {
		dst.SetZero()
		return
	}
	for !v.Type().AssignableTo(dst.Type()) && dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}
	dst.Set(v)
}

// Target checks that v is a non-nil pointer and returns the value it points at.
func Target(v any) (reflect.Value, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, false
	}
	return rv.Elem(), true
}
