package protoprop

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/builder"
	"github.com/hanpama/pathway/internal/compiled"
	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/pathparse"
	"github.com/hanpama/pathway/internal/propertyhandler"
)

func buildPerson(t *testing.T) protoreflect.MessageDescriptor {
	t.Helper()
	file := protobuilder.NewFile("people/person.proto")
	file.SetPackageName("people")
	file.SetSyntax(protoreflect.Proto3)

	status := protobuilder.NewEnum("Status")
	for i, name := range []protoreflect.Name{"STATUS_UNSPECIFIED", "STATUS_ACTIVE", "STATUS_RETIRED"} {
		v := protobuilder.NewEnumValue(name)
		v.SetNumber(protoreflect.EnumNumber(i))
		status.AddValue(v)
	}
	file.AddEnum(status)

	address := protobuilder.NewMessage("Address")
	city := protobuilder.NewField("city", protobuilder.FieldTypeScalar(protoreflect.StringKind))
	city.SetNumber(1)
	address.AddField(city)
	file.AddMessage(address)

	person := protobuilder.NewMessage("Person")
	fields := []struct {
		name protoreflect.Name
		typ  *protobuilder.FieldType
		list bool
	}{
		{"name", protobuilder.FieldTypeScalar(protoreflect.StringKind), false},
		{"age", protobuilder.FieldTypeScalar(protoreflect.Int32Kind), false},
		{"status", protobuilder.FieldTypeEnum(status), false},
		{"address", protobuilder.FieldTypeMessage(address), false},
		{"tags", protobuilder.FieldTypeScalar(protoreflect.StringKind), true},
		{"display_name", protobuilder.FieldTypeScalar(protoreflect.StringKind), false},
		{"scores", protobuilder.FieldTypeScalar(protoreflect.DoubleKind), true},
	}
	for i, f := range fields {
		fb := protobuilder.NewField(f.name, f.typ)
		fb.SetNumber(protoreflect.FieldNumber(i + 1))
		if f.list {
			fb.SetRepeated()
		}
		person.AddField(fb)
	}
	file.AddMessage(person)

	fd, err := file.Build()
	require.NoError(t, err)
	return fd.Messages().ByName("Person")
}

func newPerson(t *testing.T) *dynamicpb.Message {
	t.Helper()
	md := buildPerson(t)
	msg := dynamicpb.NewMessage(md)
	fields := md.Fields()
	msg.Set(fields.ByName("name"), protoreflect.ValueOfString("Ada"))
	msg.Set(fields.ByName("age"), protoreflect.ValueOfInt32(36))
	msg.Set(fields.ByName("status"), protoreflect.ValueOfEnum(1))
	msg.Set(fields.ByName("display_name"), protoreflect.ValueOfString("Countess"))
	tags := msg.Mutable(fields.ByName("tags")).List()
	tags.Append(protoreflect.ValueOfString("math"))
	tags.Append(protoreflect.ValueOfString("engines"))
	return msg
}

func TestGetProperty(t *testing.T) {
	h := New(nil)
	msg := newPerson(t)

	cases := []struct {
		name string
		want any
	}{
		{"name", "Ada"},
		{"age", int32(36)},
		{"status", "STATUS_ACTIVE"},
		{"tags", []any{"math", "engines"}},
		{"scores", []any{}},
		{"address", nil},
		{"displayName", "Countess"},
		{"display_name", "Countess"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := h.GetProperty(tc.name, msg, nil)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	// messages reached through protoreflect directly behave the same
	got, err := h.GetProperty("name", msg.ProtoReflect(), nil)
	require.NoError(t, err)
	require.Equal(t, "Ada", got)
}

func TestGetPropertyErrors(t *testing.T) {
	h := New(nil)
	_, err := h.GetProperty("nope", newPerson(t), nil)
	var pae *accessor.PropertyAccessError
	require.ErrorAs(t, err, &pae)
	require.ErrorIs(t, err, accessor.ErrNotFound)
	require.Equal(t, "nope", pae.Name)

	_, err = h.GetProperty("name", struct{}{}, nil)
	require.ErrorIs(t, err, accessor.ErrNotFound)
}

func TestSetProperty(t *testing.T) {
	h := New(convert.Standard)
	msg := newPerson(t)

	cases := []struct {
		name  string
		value any
		want  any
	}{
		{"age", "41", int32(41)},
		{"age", 7.0, int32(7)},
		{"status", "STATUS_RETIRED", "STATUS_RETIRED"},
		{"status", 1, "STATUS_ACTIVE"},
		{"tags", []string{"looms"}, []any{"looms"}},
		{"scores", []any{1, 2.5}, []any{1.0, 2.5}},
		{"displayName", "Enchantress", "Enchantress"},
		{"name", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := h.SetProperty(tc.name, msg, nil, tc.value)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			again, err := h.GetProperty(tc.name, msg, nil)
			require.NoError(t, err)
			require.Equal(t, tc.want, again)
		})
	}

	got, err := h.SetProperty("address", msg, nil, map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	city, err := h.GetProperty("city", got, nil)
	require.NoError(t, err)
	require.Equal(t, "Oslo", city)

	_, err = h.SetProperty("address", msg, nil, nil)
	require.NoError(t, err)
	got, err = h.GetProperty("address", msg, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSetPropertyErrors(t *testing.T) {
	h := New(nil)
	msg := newPerson(t)
	var ce *convert.ConversionError

	_, err := h.SetProperty("status", msg, nil, "STATUS_BOGUS")
	require.ErrorAs(t, err, &ce)

	_, err = h.SetProperty("age", msg, nil, "old")
	require.ErrorAs(t, err, &ce)

	_, err = h.SetProperty("tags", msg, nil, "single")
	require.ErrorAs(t, err, &ce)

	_, err = h.SetProperty("address", msg, nil, timestamppb.Now())
	require.ErrorAs(t, err, &ce)

	_, err = h.SetProperty("address", msg, nil, map[string]any{"street": "x"})
	require.ErrorIs(t, err, accessor.ErrNotFound)

	age, err := h.GetProperty("age", msg, nil)
	require.NoError(t, err)
	require.Equal(t, int32(36), age)
}

func TestMapField(t *testing.T) {
	st, err := structpb.NewStruct(map[string]any{"lang": "en", "level": 3})
	require.NoError(t, err)

	got, err := New(nil).GetProperty("fields", st, nil)
	require.NoError(t, err)
	want := map[string]any{"lang": structpb.NewStringValue("en"), "level": structpb.NewNumberValue(3)}
	if diff := cmp.Diff(want, got, protocmp.Transform()); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestBindProperty(t *testing.T) {
	h := New(nil)
	tsType := reflect.TypeOf(&timestamppb.Timestamp{})

	b, ok := h.BindProperty(tsType, "seconds")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(int64(0)), b.Type())

	ts := &timestamppb.Timestamp{Seconds: 42, Nanos: 7}
	got, err := b.Get(ts)
	require.NoError(t, err)
	require.Equal(t, int64(42), got)

	got, err = b.Set(ts, "43")
	require.NoError(t, err)
	require.Equal(t, int64(43), got)
	require.Equal(t, int64(43), ts.Seconds)

	_, ok = h.BindProperty(tsType, "minutes")
	require.False(t, ok)
	_, ok = h.BindProperty(reflect.TypeOf(&dynamicpb.Message{}), "name")
	require.False(t, ok)
	_, ok = h.BindProperty(reflect.TypeOf(""), "name")
	require.False(t, ok)

	st, ok := h.BindProperty(reflect.TypeOf(&structpb.Value{}), "struct_value")
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(&structpb.Struct{}), st.Type())
}

func chainEnv() *accessor.Env {
	reg := propertyhandler.New()
	h := New(nil)
	reg.Register(MessageType, h)
	reg.Register(ReflectType, h)
	return &accessor.Env{Converter: convert.Standard, Handlers: reg}
}

func buildChain(t *testing.T, env *accessor.Env, text string, in reflect.Type) *accessor.Node {
	t.Helper()
	segs, err := pathparse.Parse(text, nil)
	require.NoError(t, err)
	head, err := (&builder.Builder{Env: env}).Build(segs, in, nil)
	require.NoError(t, err)
	return head
}

func TestChains(t *testing.T) {
	env := chainEnv()
	h := New(nil)
	msg := newPerson(t)

	head := buildChain(t, env, "address.city", nil)
	for _, acc := range []accessor.Accessor{interp.New(head, env), mustCompile(t, env, head)} {
		_, err := h.SetProperty("address", msg, nil, map[string]any{"city": "London"})
		require.NoError(t, err)
		got, err := acc.Get(msg, msg, nil)
		require.NoError(t, err)
		require.Equal(t, "London", got)

		got, err = acc.Set(msg, msg, nil, "Paris")
		require.NoError(t, err)
		require.Equal(t, "Paris", got)
	}

	// generated messages are bound once and keep their declared types
	tsType := reflect.TypeOf(&timestamppb.Timestamp{})
	head = buildChain(t, env, "seconds", tsType)
	require.Equal(t, reflect.TypeOf(int64(0)), accessor.EgressType(head))
	acc := mustCompile(t, env, head)
	got, err := acc.Get(&timestamppb.Timestamp{Seconds: 9}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9), got)

	// an unset message field reads nil and stops at the guard
	head = buildChain(t, env, "person.?address.city", nil)
	_, err = h.SetProperty("address", msg, nil, nil)
	require.NoError(t, err)
	root := map[string]any{"person": msg}
	for _, acc := range []accessor.Accessor{interp.New(head, env), mustCompile(t, env, head)} {
		got, err := acc.Get(root, root, nil)
		require.NoError(t, err)
		require.Nil(t, got)
	}
}

func mustCompile(t *testing.T, env *accessor.Env, head *accessor.Node) accessor.Accessor {
	t.Helper()
	acc, err := compiled.New(env).Compile(head)
	require.NoError(t, err)
	return acc
}
