// Package convert implements the value coercion service consulted by the
// accessor strategies whenever a runtime value does not match a required type.
package convert

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Converter coerces values between Go types.
//
// Convert returns a value whose dynamic type is exactly `to` (or, for
// interface targets, a value assignable to it). CanConvert is a static check
// over types only; a true result does not promise that every value of `from`
// converts (e.g. a string that is not a number).
type Converter interface {
	Convert(v any, to reflect.Type) (any, error)
	CanConvert(from, to reflect.Type) bool
}

var (
	// ErrNilValue indicates that nil cannot be represented by the target type.
	ErrNilValue = errors.New("convert: nil value")
	// ErrOutOfRange indicates a numeric value that does not fit in the target type.
	ErrOutOfRange = errors.New("convert: value out of range")
	// ErrUnsupported indicates that no conversion exists between the two types.
	ErrUnsupported = errors.New("convert: unsupported conversion")
)

// ConversionError reports an impossible coercion.
type ConversionError struct {
	Value any
	To    reflect.Type
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %v (%T) to %v: %v", e.Value, e.Value, e.To, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Default is the stock converter. The zero value is ready to use.
type Default struct{}

var _ Converter = Default{}

// Standard is the converter used when none is configured.
var Standard Converter = Default{}

func (d Default) Convert(v any, to reflect.Type) (any, error) {
	if to == nil {
		return v, nil
	}
	if v == nil {
		if Nilable(to) {
			return reflect.Zero(to).Interface(), nil
		}
		return nil, &ConversionError{Value: v, To: to, Err: ErrNilValue}
	}
	rv := reflect.ValueOf(v)
	from := rv.Type()
	if from == to {
		return v, nil
	}
	if from.AssignableTo(to) {
		if to.Kind() == reflect.Interface {
			return v, nil
		}
		return rv.Convert(to).Interface(), nil
	}
	out, err := d.convertValue(rv, to)
	if err != nil {
		return nil, &ConversionError{Value: v, To: to, Err: err}
	}
	return out.Interface(), nil
}

func (d Default) convertValue(rv reflect.Value, to reflect.Type) (reflect.Value, error) {
	from := rv.Type()

	// Dereference pointers on the source side.
	if from.Kind() == reflect.Ptr && to.Kind() != reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, ErrNilValue
		}
		return d.convertValue(rv.Elem(), to)
	}

	switch {
	case isNumber(from.Kind()) && isNumber(to.Kind()):
		return convertNumber(rv, to)
	case to.Kind() == reflect.String:
		return toString(rv, to)
	case from.Kind() == reflect.String:
		return fromString(rv.String(), to)
	case to.Kind() == reflect.Ptr:
		inner, err := d.convertValue(rv, to.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(to.Elem())
		p.Elem().Set(inner)
		return p, nil
	case (from.Kind() == reflect.Slice || from.Kind() == reflect.Array) && to.Kind() == reflect.Slice:
		out := reflect.MakeSlice(to, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev := rv.Index(i)
			if ev.Kind() == reflect.Interface {
				if ev.IsNil() {
					if !Nilable(to.Elem()) {
						return reflect.Value{}, ErrNilValue
					}
					continue
				}
				ev = ev.Elem()
			}
			conv, err := d.elem(ev, to.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(conv)
		}
		return out, nil
	case from.ConvertibleTo(to) && !isInteger(from.Kind()):
		return rv.Convert(to), nil
	}
	return reflect.Value{}, ErrUnsupported
}

func (d Default) elem(ev reflect.Value, to reflect.Type) (reflect.Value, error) {
	if ev.Type().AssignableTo(to) {
		return ev, nil
	}
	return d.convertValue(ev, to)
}

func (d Default) CanConvert(from, to reflect.Type) bool {
	if to == nil {
		return true
	}
	if from == nil {
		return Nilable(to)
	}
	if from == to || from.AssignableTo(to) {
		return true
	}
	fk, tk := from.Kind(), to.Kind()
	switch {
	case fk == reflect.Ptr && tk != reflect.Ptr:
		return d.CanConvert(from.Elem(), to)
	case isNumber(fk) && isNumber(tk):
		return true
	case tk == reflect.String:
		return isNumber(fk) || fk == reflect.Bool || fk == reflect.String || isByteSlice(from) || from.Implements(stringerType)
	case fk == reflect.String:
		return isNumber(tk) || tk == reflect.Bool || isByteSlice(to)
	case tk == reflect.Ptr:
		return d.CanConvert(from, to.Elem())
	case (fk == reflect.Slice || fk == reflect.Array) && tk == reflect.Slice:
		return from.Elem().Kind() == reflect.Interface || d.CanConvert(from.Elem(), to.Elem())
	}
	return from.ConvertibleTo(to) && !isInteger(fk)
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

// Nilable reports whether nil is a valid value of t.
func Nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	}
	return false
}

func isInteger(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k)
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumber(k reflect.Kind) bool {
	return isInteger(k) || isFloat(k)
}

func isByteSlice(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func convertNumber(rv reflect.Value, to reflect.Type) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	fk, tk := rv.Kind(), to.Kind()
	switch {
	case isSigned(fk):
		n := rv.Int()
		switch {
		case isSigned(tk):
			if out.OverflowInt(n) {
				return reflect.Value{}, ErrOutOfRange
			}
			out.SetInt(n)
		case isUnsigned(tk):
			if n < 0 || out.OverflowUint(uint64(n)) {
				return reflect.Value{}, ErrOutOfRange
			}
			out.SetUint(uint64(n))
		default:
			out.SetFloat(float64(n))
		}
	case isUnsigned(fk):
		n := rv.Uint()
		switch {
		case isSigned(tk):
			if n > math.MaxInt64 || out.OverflowInt(int64(n)) {
				return reflect.Value{}, ErrOutOfRange
			}
			out.SetInt(int64(n))
		case isUnsigned(tk):
			if out.OverflowUint(n) {
				return reflect.Value{}, ErrOutOfRange
			}
			out.SetUint(n)
		default:
			out.SetFloat(float64(n))
		}
	default:
		f := rv.Float()
		switch {
		case isFloat(tk):
			if tk == reflect.Float32 && !math.IsInf(f, 0) && !math.IsNaN(f) && out.OverflowFloat(f) {
				return reflect.Value{}, ErrOutOfRange
			}
			out.SetFloat(f)
		default:
			if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
				return reflect.Value{}, fmt.Errorf("%w: %v is not integral", ErrOutOfRange, f)
			}
			if isSigned(tk) {
				if f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
					return reflect.Value{}, ErrOutOfRange
				}
				out.SetInt(int64(f))
			} else {
				if f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
					return reflect.Value{}, ErrOutOfRange
				}
				out.SetUint(uint64(f))
			}
		}
	}
	return out, nil
}

func toString(rv reflect.Value, to reflect.Type) (reflect.Value, error) {
	var s string
	k := rv.Kind()
	switch {
	case isSigned(k):
		s = strconv.FormatInt(rv.Int(), 10)
	case isUnsigned(k):
		s = strconv.FormatUint(rv.Uint(), 10)
	case isFloat(k):
		s = strconv.FormatFloat(rv.Float(), 'g', -1, rv.Type().Bits())
	case k == reflect.Bool:
		s = strconv.FormatBool(rv.Bool())
	case k == reflect.String:
		s = rv.String()
	case isByteSlice(rv.Type()):
		s = string(rv.Bytes())
	case rv.Type().Implements(stringerType):
		s = rv.Interface().(fmt.Stringer).String()
	default:
		return reflect.Value{}, ErrUnsupported
	}
	return reflect.ValueOf(s).Convert(to), nil
}

func fromString(s string, to reflect.Type) (reflect.Value, error) {
	out := reflect.New(to).Elem()
	tk := to.Kind()
	switch {
	case isSigned(tk):
		n, err := strconv.ParseInt(s, 0, to.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case isUnsigned(tk):
		n, err := strconv.ParseUint(s, 0, to.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case isFloat(tk):
		f, err := strconv.ParseFloat(s, to.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case tk == reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case isByteSlice(to):
		out.SetBytes([]byte(s))
	default:
		return reflect.Value{}, ErrUnsupported
	}
	return out, nil
}
