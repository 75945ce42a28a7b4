// Package member holds the reflective member machinery shared by the
// interpreted and compiled strategies: property lookup, overload resolution,
// argument binding and collection indexing.
//
// Lookup functions are pure functions of a reflect.Type. The interpreted
// strategy calls them on every evaluation; the compiled strategy calls them once
// and keeps the result. Both run the same Get/Set/Invoke code afterwards.
package member

import (
	"errors"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
)

// IsNil reports whether v is nil or a nil pointer, map, slice, func, chan or
// interface value.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

// Dynamic reports whether a declared type carries no information usable for
// specialization.
func Dynamic(t reflect.Type) bool {
	return t == nil || t.Kind() == reflect.Interface
}

// Static normalizes a declared type: interface types become nil.
func Static(t reflect.Type) reflect.Type {
	if Dynamic(t) {
		return nil
	}
	return t
}

// Coerce returns value as a reflect.Value assignable to t, converting through
// conv when needed.
func Coerce(value any, t reflect.Type, conv convert.Converter) (reflect.Value, error) {
	if value == nil {
		if convert.Nilable(t) {
			return reflect.Zero(t), nil
		}
		_, err := conv.Convert(nil, t)
		if err == nil {
			err = &convert.ConversionError{Value: nil, To: t, Err: convert.ErrNilValue}
		}
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	out, err := conv.Convert(value, t)
	if err != nil {
		return reflect.Value{}, err
	}
	if out == nil {
		return reflect.Zero(t), nil
	}
	ov := reflect.ValueOf(out)
	if !ov.Type().AssignableTo(t) {
		return reflect.Value{}, &convert.ConversionError{Value: value, To: t, Err: convert.ErrUnsupported}
	}
	return ov, nil
}

// exportedName upper-cases the first rune of name.
func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// candidateNames returns the Go identifiers a path name may refer to, in
// lookup order and without duplicates.
func candidateNames(name string) []string {
	up := exportedName(name)
	if up == name {
		return []string{name}
	}
	return []string{name, up}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Wrap returns err as a PropertyAccessError for op/name against target,
// leaving access and conversion errors as they are.
func Wrap(op, name string, target any, err error) error {
	if err == nil {
		return nil
	}
	var pae *accessor.PropertyAccessError
	var ce *convert.ConversionError
	if errors.As(err, &pae) || errors.As(err, &ce) {
		return err
	}
	return accessor.NewAccessError(op, name, target, err)
}
