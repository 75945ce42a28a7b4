package engine

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/adaptive"
	"github.com/hanpama/pathway/internal/compiled"
	"github.com/hanpama/pathway/internal/config"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/pathtest"
	"github.com/hanpama/pathway/internal/scope"
)

func TestNullSafeNavigation(t *testing.T) {
	e := New()
	u := pathtest.Sample()
	u.Address = nil
	root := map[string]any{"user": u}

	got, err := e.Get("user.?address.city", root, nil)
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = e.Get("user.address.city", root, nil)
	var pae *accessor.PropertyAccessError
	require.ErrorAs(t, err, &pae)
	require.ErrorIs(t, err, accessor.ErrNilTarget)
	require.Equal(t, "city", pae.Name)

	u.Address = &pathtest.Address{City: "Lisbon"}
	got, err = e.Get("user.?address.city", root, nil)
	require.NoError(t, err)
	require.Equal(t, "Lisbon", got)
}

func TestTieringThroughEngine(t *testing.T) {
	e := New(WithTiering(adaptive.WithThreshold(3)))
	acc, err := e.Compile("friends[0].greet(name)", &pathtest.User{})
	require.NoError(t, err)
	site, ok := acc.(*adaptive.Accessor)
	require.True(t, ok)

	u := pathtest.Sample()
	for range 5 {
		got, err := site.Get(u, u, nil)
		require.NoError(t, err)
		require.Equal(t, "Ada, Bob", got)
	}
	require.Equal(t, adaptive.Hot, site.State())
	// the nested argument path is a call site of its own
	require.Equal(t, int64(2), e.Stats().Compiled)
	require.Equal(t, 2, e.Stats().Live)

	e.Reset()
	require.Equal(t, adaptive.Demoted, site.State())
	require.Zero(t, e.Stats().Live)
	require.Equal(t, int64(1), e.Stats().Resets)

	got, err := site.Get(u, u, nil)
	require.NoError(t, err)
	require.Equal(t, "Ada, Bob", got)
}

func TestStrategies(t *testing.T) {
	e := New()
	acc, err := e.Compile("name", &pathtest.User{}, WithStrategy(Interpreted))
	require.NoError(t, err)
	require.IsType(t, &interp.Accessor{}, acc)

	acc, err = e.Compile("name", &pathtest.User{}, WithStrategy(Compiled))
	require.NoError(t, err)
	require.IsType(t, &compiled.Accessor{}, acc)

	e.RegisterHandler(reflect.TypeOf(&pathtest.Bag{}), pathtest.OpaqueHandler{})
	_, err = e.Compile("color", &pathtest.Bag{}, WithStrategy(Compiled))
	require.ErrorIs(t, err, accessor.ErrCompilationNotSupported)

	acc, err = e.Compile("color", &pathtest.Bag{})
	require.NoError(t, err)
	bag := &pathtest.Bag{Values: map[string]any{"color": "red"}}
	for range adaptive.DefaultThreshold + 1 {
		got, err := acc.Get(bag, bag, nil)
		require.NoError(t, err)
		require.Equal(t, "red", got)
	}
	require.True(t, acc.(*adaptive.Accessor).Declined())

	e = New(WithDefaultStrategy(Interpreted))
	acc, err = e.Compile("name", nil)
	require.NoError(t, err)
	require.IsType(t, &interp.Accessor{}, acc)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{Adaptive, Interpreted, Compiled} {
		got, err := ParseStrategy(s.String())
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
	_, err := ParseStrategy("jit")
	require.Error(t, err)
	require.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tiering.Threshold = 7
	cfg.Tiering.TenureLimit = 3
	cfg.Tiering.Strategy = config.StrategyCompiled

	e := New(WithConfig(cfg))
	opts := e.Registry().Options()
	require.Equal(t, int64(7), opts.Threshold)
	require.Equal(t, 3, opts.TenureLimit)

	acc, err := e.Compile("name", nil)
	require.NoError(t, err)
	require.IsType(t, &compiled.Accessor{}, acc)
}

func TestSymbols(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterConstructor("Point", pathtest.NewPoint, pathtest.ParsePoint))
	require.NoError(t, e.RegisterType("Address", pathtest.Address{}))
	e.RegisterStatic("Limits", map[string]int{"max": 10})

	cases := []struct {
		path string
		want any
	}{
		{"new Point(1, 2).x", 1},
		{"new Point('3:4').y", 4},
		{"new Address().city", ""},
		{"Limits.max", 10},
	}
	for _, tc := range cases {
		got, err := e.Get(tc.path, nil, nil)
		require.NoError(t, err, tc.path)
		require.Equal(t, tc.want, got, tc.path)
	}

	// a variable of the same name shadows the static
	s := scope.New(nil)
	s.Define("Limits", map[string]int{"max": 1})
	got, err := e.Get("Limits.max", nil, s)
	require.NoError(t, err)
	require.Equal(t, 1, got)

	require.Error(t, e.RegisterConstructor("Bad", 3))
	require.Error(t, e.RegisterConstructor("Bad", func() (int, int) { return 0, 0 }))
	require.Error(t, e.RegisterType("Nil", nil))

	_, err = e.Get("new Missing()", nil, nil)
	require.ErrorIs(t, err, accessor.ErrNotFound)
}

func TestSiteCache(t *testing.T) {
	e := New()
	u := pathtest.Sample()
	for range 3 {
		_, err := e.Get("address.city", u, nil)
		require.NoError(t, err)
	}
	got, err := e.Set("address.city", u, nil, "Paris")
	require.NoError(t, err)
	require.Equal(t, "Paris", got)
	require.Equal(t, "Paris", u.Address.City)
	require.Equal(t, 1, e.Stats().Sites)

	e.RegisterStatic("x", 1)
	require.Zero(t, e.Stats().Sites)

	_, err = e.Get("address.", u, nil)
	require.Error(t, err)
	require.Zero(t, e.Stats().Sites)
}

func TestAccessEvents(t *testing.T) {
	bus := eventbus.New()
	e := New(WithBus(bus), WithAccessEvents())
	require.Same(t, bus, e.Bus())

	var mu sync.Mutex
	var names []string
	eventbus.Subscribe(bus, func(_ context.Context, ev events.PropertyGet) {
		mu.Lock()
		names = append(names, "get "+ev.Name)
		mu.Unlock()
	})
	eventbus.Subscribe(bus, func(_ context.Context, ev events.PropertySet) {
		mu.Lock()
		names = append(names, "set "+ev.Name)
		mu.Unlock()
	})

	u := pathtest.Sample()
	_, err := e.Get("address.city", u, nil)
	require.NoError(t, err)
	_, err = e.Set("age", u, nil, 40)
	require.NoError(t, err)
	require.Equal(t, []string{"get address", "get city", "set age"}, names)

	rec := &pathtest.Recorder{}
	e.AddListener(rec)
	_, err = e.Get("name", u, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"get name on *pathtest.User"}, rec.Events)
}

type fixedHandler struct{ v string }

func (h fixedHandler) GetProperty(string, any, *scope.Scope) (any, error)      { return h.v, nil }
func (h fixedHandler) SetProperty(string, any, *scope.Scope, any) (any, error) { return h.v, nil }

func TestRegisterHandlerDeoptimizes(t *testing.T) {
	e := New(WithTiering(adaptive.WithThreshold(2)))
	acc, err := e.Compile("name", nil)
	require.NoError(t, err)
	site := acc.(*adaptive.Accessor)

	u := pathtest.Sample()
	for range 3 {
		got, err := site.Get(u, u, nil)
		require.NoError(t, err)
		require.Equal(t, "Ada", got)
		_, err = e.Get("name", u, nil)
		require.NoError(t, err)
	}
	require.Equal(t, adaptive.Hot, site.State())

	e.RegisterHandler(reflect.TypeOf(u), fixedHandler{v: "handled"})
	require.Equal(t, adaptive.Demoted, site.State())
	require.Zero(t, e.Stats().Live)

	got, err := site.Get(u, u, nil)
	require.NoError(t, err)
	require.Equal(t, "handled", got)
	got, err = e.Get("name", u, nil)
	require.NoError(t, err)
	require.Equal(t, "handled", got)
}

func TestTieringEvents(t *testing.T) {
	e := New(WithTiering(adaptive.WithThreshold(2)))
	var starts, finishes int
	eventbus.Subscribe(e.Bus(), func(context.Context, events.SpecializeStart) { starts++ })
	eventbus.Subscribe(e.Bus(), func(_ context.Context, ev events.SpecializeFinish) {
		require.False(t, ev.Declined)
		finishes++
	})

	u := pathtest.Sample()
	for range 4 {
		_, err := e.Get("address.zip", u, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 1, starts)
	require.Equal(t, 1, finishes)
}

func TestProtobufTargets(t *testing.T) {
	e := New()
	ts := &timestamppb.Timestamp{Seconds: 5, Nanos: 9}
	got, err := e.Get("seconds", ts, nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), got)

	acc, err := e.Compile("nanos", ts, WithStrategy(Compiled))
	require.NoError(t, err)
	require.Equal(t, reflect.TypeOf(int32(0)), acc.KnownEgressType())
	_, err = acc.Set(ts, ts, nil, 11)
	require.NoError(t, err)
	require.Equal(t, int32(11), ts.Nanos)

	e = New(WithoutProtobuf())
	got, err = e.Get("seconds", ts, nil)
	require.NoError(t, err)
	require.Equal(t, int64(5), got)
	_, err = e.Get("nanos_field", ts, nil)
	require.ErrorIs(t, err, accessor.ErrNotFound)
}

func TestConcurrentGet(t *testing.T) {
	e := New(WithTiering(adaptive.WithThreshold(10)))
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := pathtest.Sample()
			for range 200 {
				got, err := e.Get("friends[0].address.city", u, nil)
				if err != nil || got != "Berlin" {
					t.Errorf("got %v, %v", got, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
