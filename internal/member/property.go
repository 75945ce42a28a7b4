package member

import (
	"reflect"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
)

// PropertyKind is how a Property reaches its value.
type PropertyKind uint8

const (
	FieldProperty PropertyKind = iota
	GetterProperty
	MapKeyProperty
)

// Property is a named property resolved for one concrete owner type.
type Property struct {
	Name  string
	Owner reflect.Type
	Kind  PropertyKind
	// Type is the declared type of the property value.
	Type reflect.Type

	field     []int
	getter    reflect.Value
	getterErr bool
	setter    reflect.Value
	setterIn  reflect.Type
	setterErr bool
	key       reflect.Value
}

// LookupProperty resolves name on type t. Lookup order: string-keyed map
// entry, exported field (exact name, then capitalized), getter method
// (Name, GetName, IsName).
func LookupProperty(t reflect.Type, name string) (*Property, bool) {
	if t == nil || name == "" {
		return nil, false
	}
	if t.Kind() == reflect.Map {
		if t.Key().Kind() != reflect.String {
			return nil, false
		}
		return &Property{
			Name:  name,
			Owner: t,
			Kind:  MapKeyProperty,
			Type:  t.Elem(),
			key:   reflect.ValueOf(name).Convert(t.Key()),
		}, true
	}

	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, cand := range candidateNames(name) {
			f, ok := st.FieldByName(cand)
			if ok && f.IsExported() {
				return &Property{Name: name, Owner: t, Kind: FieldProperty, Type: f.Type, field: f.Index}, true
			}
		}
	}

	up := exportedName(name)
	for _, cand := range []string{up, "Get" + up, "Is" + up} {
		m, ok := t.MethodByName(cand)
		if !ok || !isGetter(m.Type) {
			continue
		}
		if cand == "Is"+up && m.Type.Out(0).Kind() != reflect.Bool {
			continue
		}
		p := &Property{
			Name:      name,
			Owner:     t,
			Kind:      GetterProperty,
			Type:      m.Type.Out(0),
			getter:    m.Func,
			getterErr: m.Type.NumOut() == 2,
		}
		if sm, ok := t.MethodByName("Set" + up); ok && isSetter(sm.Type) {
			p.setter = sm.Func
			p.setterIn = sm.Type.In(1)
			p.setterErr = sm.Type.NumOut() == 1
		}
		return p, true
	}
	return nil, false
}

// isGetter matches func(recv) T and func(recv) (T, error).
func isGetter(ft reflect.Type) bool {
	if ft.NumIn() != 1 {
		return false
	}
	switch ft.NumOut() {
	case 1:
		return ft.Out(0) != errorType
	case 2:
		return ft.Out(1) == errorType
	}
	return false
}

// isSetter matches func(recv, T) and func(recv, T) error.
func isSetter(ft reflect.Type) bool {
	if ft.NumIn() != 2 || ft.IsVariadic() {
		return false
	}
	return ft.NumOut() == 0 || (ft.NumOut() == 1 && ft.Out(0) == errorType)
}

// Get reads the property from rv, whose type must be p.Owner and which must
// not be nil.
func (p *Property) Get(rv reflect.Value) (any, error) {
	switch p.Kind {
	case MapKeyProperty:
		v := rv.MapIndex(p.key)
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case FieldProperty:
		sv := rv
		if sv.Kind() == reflect.Ptr {
			sv = sv.Elem()
		}
		f, err := sv.FieldByIndexErr(p.field)
		if err != nil {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNilTarget}
		}
		return f.Interface(), nil
	default:
		out := p.getter.Call([]reflect.Value{rv})
		if p.getterErr {
			if errV := out[1]; !errV.IsNil() {
				return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: errV.Interface().(error)}
			}
		}
		return out[0].Interface(), nil
	}
}

// Settable reports whether the property has a write path at all.
func (p *Property) Settable() bool {
	return p.Kind != GetterProperty || p.setter.IsValid()
}

// Set writes value into rv and returns the stored value after coercion.
func (p *Property) Set(rv reflect.Value, value any, conv convert.Converter) (any, error) {
	switch p.Kind {
	case MapKeyProperty:
		if rv.IsNil() {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNilTarget}
		}
		v, err := Coerce(value, p.Owner.Elem(), conv)
		if err != nil {
			return nil, err
		}
		rv.SetMapIndex(p.key, v)
		return v.Interface(), nil
	case FieldProperty:
		if rv.Kind() != reflect.Ptr {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNotAssignable}
		}
		f, err := rv.Elem().FieldByIndexErr(p.field)
		if err != nil {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNilTarget}
		}
		if !f.CanSet() {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNotAssignable}
		}
		v, err := Coerce(value, f.Type(), conv)
		if err != nil {
			return nil, err
		}
		f.Set(v)
		return v.Interface(), nil
	default:
		if !p.setter.IsValid() {
			return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: accessor.ErrNotAssignable}
		}
		v, err := Coerce(value, p.setterIn, conv)
		if err != nil {
			return nil, err
		}
		out := p.setter.Call([]reflect.Value{rv, v})
		if p.setterErr {
			if errV := out[0]; !errV.IsNil() {
				return nil, &accessor.PropertyAccessError{Op: "property", Name: p.Name, Type: p.Owner, Err: errV.Interface().(error)}
			}
		}
		return v.Interface(), nil
	}
}
