package member

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
)

var intType = reflect.TypeOf(0)

// IndexElem returns the declared element type produced by indexing t, or nil
// when t cannot be indexed statically.
func IndexElem(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Array {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return t.Elem()
	case reflect.String:
		return reflect.TypeOf(rune(0))
	}
	return nil
}

func indexError(idx any, t reflect.Type, err error) error {
	return &accessor.PropertyAccessError{Op: "index", Name: fmt.Sprint(idx), Type: t, Err: err}
}

// position converts a list index to an int and checks bounds.
func position(idx any, n int, t reflect.Type, conv convert.Converter) (int, error) {
	if idx == nil {
		return 0, indexError(idx, t, accessor.ErrIndex)
	}
	v, err := conv.Convert(idx, intType)
	if err != nil {
		return 0, indexError(idx, t, fmt.Errorf("%w: %v", accessor.ErrIndex, err))
	}
	i := v.(int)
	if i < 0 || i >= n {
		return 0, indexError(idx, t, fmt.Errorf("%w: %d out of range [0,%d)", accessor.ErrIndex, i, n))
	}
	return i, nil
}

// IndexGet reads rv[idx]. Maps read nil for missing keys; strings yield the
// rune at the given rune position.
func IndexGet(rv reflect.Value, idx any, conv convert.Converter) (any, error) {
	if rv.Kind() == reflect.Ptr && rv.Type().Elem().Kind() == reflect.Array {
		rv = rv.Elem()
	}
	t := rv.Type()
	switch rv.Kind() {
	case reflect.Map:
		k, err := Coerce(idx, t.Key(), conv)
		if err != nil {
			return nil, err
		}
		v := rv.MapIndex(k)
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Slice, reflect.Array:
		i, err := position(idx, rv.Len(), t, conv)
		if err != nil {
			return nil, err
		}
		return rv.Index(i).Interface(), nil
	case reflect.String:
		s := rv.String()
		i, err := position(idx, utf8.RuneCountInString(s), t, conv)
		if err != nil {
			return nil, err
		}
		for _, r := range s {
			if i == 0 {
				return r, nil
			}
			i--
		}
	}
	return nil, indexError(idx, t, accessor.ErrIndex)
}

// IndexSet writes value at rv[idx] and returns the stored value after
// coercion to the element type. Arrays are writable only through a pointer.
func IndexSet(rv reflect.Value, idx, value any, conv convert.Converter) (any, error) {
	t := rv.Type()
	if rv.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Array {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return nil, indexError(idx, t, accessor.ErrNilTarget)
		}
		k, err := Coerce(idx, rv.Type().Key(), conv)
		if err != nil {
			return nil, err
		}
		v, err := Coerce(value, rv.Type().Elem(), conv)
		if err != nil {
			return nil, err
		}
		rv.SetMapIndex(k, v)
		return v.Interface(), nil
	case reflect.Slice, reflect.Array:
		i, err := position(idx, rv.Len(), t, conv)
		if err != nil {
			return nil, err
		}
		el := rv.Index(i)
		if !el.CanSet() {
			return nil, indexError(idx, t, accessor.ErrNotAssignable)
		}
		v, err := Coerce(value, el.Type(), conv)
		if err != nil {
			return nil, err
		}
		el.Set(v)
		return v.Interface(), nil
	case reflect.String:
		return nil, indexError(idx, t, accessor.ErrNotAssignable)
	}
	return nil, indexError(idx, t, accessor.ErrIndex)
}
