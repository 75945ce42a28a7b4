// Package protoprop serves protobuf message fields as path properties.
//
// Fields are found by proto name, then by JSON name. Values cross the
// boundary as plain Go values:
//   - scalars keep their proto width (int32, uint64, float32, ...)
//   - enums read as their value name and accept a name or a number
//   - singular message fields read as the field's proto.Message, or nil
//     when unset
//   - repeated fields read as []any and map fields as map[string]any
package protoprop

import (
	"fmt"
	"reflect"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/scope"
)

var (
	// MessageType is the interface a Handler is registered for.
	MessageType = reflect.TypeOf((*proto.Message)(nil)).Elem()
	// ReflectType covers protoreflect.Message values passed directly.
	ReflectType = reflect.TypeOf((*protoreflect.Message)(nil)).Elem()

	dynamicType = reflect.TypeOf((*dynamicpb.Message)(nil))
)

// Handler is a property handler for proto.Message and protoreflect.Message
// targets.
type Handler struct {
	Conv convert.Converter
}

var (
	_ accessor.PropertyHandler = (*Handler)(nil)
	_ accessor.PropertyBinder  = (*Handler)(nil)
)

func New(conv convert.Converter) *Handler {
	if conv == nil {
		conv = convert.Standard
	}
	return &Handler{Conv: conv}
}

func message(target any) (protoreflect.Message, bool) {
	switch m := target.(type) {
	case protoreflect.Message:
		return m, true
	case proto.Message:
		return m.ProtoReflect(), true
	}
	return nil, false
}

func field(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	fields := md.Fields()
	if fd := fields.ByName(protoreflect.Name(name)); fd != nil {
		return fd
	}
	return fields.ByJSONName(name)
}

func (h *Handler) resolve(name string, target any) (protoreflect.Message, protoreflect.FieldDescriptor, error) {
	msg, ok := message(target)
	if !ok {
		return nil, nil, accessor.NewAccessError("property", name, target, fmt.Errorf("%w: %T is not a protobuf message", accessor.ErrNotFound, target))
	}
	fd := field(msg.Descriptor(), name)
	if fd == nil {
		return nil, nil, accessor.NewAccessError("property", name, target, fmt.Errorf("%w in %s", accessor.ErrNotFound, msg.Descriptor().FullName()))
	}
	return msg, fd, nil
}

func (h *Handler) GetProperty(name string, target any, _ *scope.Scope) (any, error) {
	msg, fd, err := h.resolve(name, target)
	if err != nil {
		return nil, err
	}
	return read(msg, fd), nil
}

func (h *Handler) SetProperty(name string, target any, _ *scope.Scope, value any) (any, error) {
	msg, fd, err := h.resolve(name, target)
	if err != nil {
		return nil, err
	}
	return h.write(msg, fd, value)
}

// BindProperty resolves name once for a generated message type. Dynamic
// messages carry their descriptor per value and are not bound.
func (h *Handler) BindProperty(t reflect.Type, name string) (accessor.PropertyBinding, bool) {
	if t == dynamicType || t.Kind() != reflect.Ptr || !t.Implements(MessageType) {
		return nil, false
	}
	zero, ok := reflect.New(t.Elem()).Interface().(proto.Message)
	if !ok {
		return nil, false
	}
	msg := zero.ProtoReflect()
	fd := field(msg.Descriptor(), name)
	if fd == nil {
		return nil, false
	}
	return &binding{h: h, fd: fd, typ: goType(msg, fd)}, true
}

type binding struct {
	h   *Handler
	fd  protoreflect.FieldDescriptor
	typ reflect.Type
}

func (b *binding) Get(target any) (any, error) {
	return read(target.(proto.Message).ProtoReflect(), b.fd), nil
}

func (b *binding) Set(target any, value any) (any, error) {
	return b.h.write(target.(proto.Message).ProtoReflect(), b.fd, value)
}

func (b *binding) Type() reflect.Type { return b.typ }

// goType is the Go type read produces for fd, or nil when it varies.
func goType(msg protoreflect.Message, fd protoreflect.FieldDescriptor) reflect.Type {
	switch {
	case fd.IsMap():
		return reflect.TypeOf(map[string]any(nil))
	case fd.IsList():
		return reflect.TypeOf([]any(nil))
	}
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return reflect.TypeOf(msg.NewField(fd).Message().Interface())
	case protoreflect.EnumKind:
		return nil
	}
	return scalarType(fd.Kind())
}

func scalarType(k protoreflect.Kind) reflect.Type {
	switch k {
	case protoreflect.BoolKind:
		return reflect.TypeOf(false)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return reflect.TypeOf(int32(0))
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return reflect.TypeOf(int64(0))
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return reflect.TypeOf(uint32(0))
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return reflect.TypeOf(uint64(0))
	case protoreflect.FloatKind:
		return reflect.TypeOf(float32(0))
	case protoreflect.DoubleKind:
		return reflect.TypeOf(float64(0))
	case protoreflect.StringKind:
		return reflect.TypeOf("")
	case protoreflect.BytesKind:
		return reflect.TypeOf([]byte(nil))
	}
	return nil
}

func read(msg protoreflect.Message, fd protoreflect.FieldDescriptor) any {
	switch {
	case fd.IsMap():
		m := msg.Get(fd).Map()
		out := make(map[string]any, m.Len())
		m.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
			out[k.String()] = value(fd.MapValue(), v)
			return true
		})
		return out
	case fd.IsList():
		l := msg.Get(fd).List()
		out := make([]any, 0, l.Len())
		for i := 0; i < l.Len(); i++ {
			out = append(out, value(fd, l.Get(i)))
		}
		return out
	case fd.Message() != nil && !msg.Has(fd):
		return nil
	}
	return value(fd, msg.Get(fd))
}

// value converts a single protobuf value to its Go form.
func value(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return int32(v.Int())
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return uint32(v.Uint())
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind:
		return float32(v.Float())
	case protoreflect.DoubleKind:
		return v.Float()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return v.Bytes()
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(v.Enum()); ev != nil {
			return string(ev.Name())
		}
		return int32(v.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return v.Message().Interface()
	}
	return nil
}

func (h *Handler) write(msg protoreflect.Message, fd protoreflect.FieldDescriptor, v any) (any, error) {
	if v == nil {
		msg.Clear(fd)
		return read(msg, fd), nil
	}
	switch {
	case fd.IsMap():
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map {
			return nil, h.fail(fd, v)
		}
		m := msg.NewField(fd).Map()
		iter := rv.MapRange()
		for iter.Next() {
			k, err := h.scalar(fd.MapKey(), iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			pv, err := h.single(fd.MapValue(), iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m.Set(k.MapKey(), pv)
		}
		msg.Set(fd, protoreflect.ValueOfMap(m))
	case fd.IsList():
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, h.fail(fd, v)
		}
		l := msg.NewField(fd).List()
		for i := 0; i < rv.Len(); i++ {
			pv, err := h.single(fd, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			l.Append(pv)
		}
		msg.Set(fd, protoreflect.ValueOfList(l))
	default:
		pv, err := h.single(fd, v)
		if err != nil {
			return nil, err
		}
		msg.Set(fd, pv)
	}
	return read(msg, fd), nil
}

func (h *Handler) single(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		switch m := v.(type) {
		case proto.Message:
			if m.ProtoReflect().Descriptor().FullName() != fd.Message().FullName() {
				return protoreflect.Value{}, h.fail(fd, v)
			}
			return protoreflect.ValueOfMessage(m.ProtoReflect()), nil
		case map[string]any:
			sub := dynamicpb.NewMessage(fd.Message())
			for k, fv := range m {
				sfd := field(fd.Message(), k)
				if sfd == nil {
					return protoreflect.Value{}, accessor.NewAccessError("property", k, sub, accessor.ErrNotFound)
				}
				if _, err := h.write(sub, sfd, fv); err != nil {
					return protoreflect.Value{}, err
				}
			}
			return protoreflect.ValueOfMessage(sub), nil
		}
		return protoreflect.Value{}, h.fail(fd, v)
	case protoreflect.EnumKind:
		if s, ok := v.(string); ok {
			if ev := fd.Enum().Values().ByName(protoreflect.Name(s)); ev != nil {
				return protoreflect.ValueOfEnum(ev.Number()), nil
			}
			return protoreflect.Value{}, h.fail(fd, v)
		}
		n, err := h.Conv.Convert(v, reflect.TypeOf(int32(0)))
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfEnum(protoreflect.EnumNumber(n.(int32))), nil
	}
	return h.scalar(fd, v)
}

func (h *Handler) scalar(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	t := scalarType(fd.Kind())
	if t == nil {
		return protoreflect.Value{}, h.fail(fd, v)
	}
	out, err := h.Conv.Convert(v, t)
	if err != nil {
		return protoreflect.Value{}, err
	}
	return protoreflect.ValueOf(out), nil
}

func (h *Handler) fail(fd protoreflect.FieldDescriptor, v any) error {
	return &convert.ConversionError{Value: v, To: goType(dynamicpb.NewMessage(fd.ContainingMessage()), fd), Err: convert.ErrUnsupported}
}
