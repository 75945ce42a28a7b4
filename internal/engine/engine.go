// Package engine ties the path parser, chain builder and execution strategies
// together behind one explicit object. Every registry an evaluation consults
// (statics, constructors, property handlers, listeners, compiled units) is
// owned by an Engine; nothing is process-global.
package engine

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/adaptive"
	"github.com/hanpama/pathway/internal/builder"
	"github.com/hanpama/pathway/internal/compiled"
	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/eventbus"
	"github.com/hanpama/pathway/internal/events"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/pathparse"
	"github.com/hanpama/pathway/internal/propertyhandler"
	"github.com/hanpama/pathway/internal/protoprop"
	"github.com/hanpama/pathway/internal/scope"
	"github.com/hanpama/pathway/internal/siteid"
	"github.com/hanpama/pathway/internal/statement"
)

// Engine compiles and evaluates paths.
type Engine struct {
	opts     Options
	env      *accessor.Env
	handlers *propertyhandler.Registry
	compiler *compiled.Compiler
	registry *adaptive.Registry

	mu        sync.RWMutex
	statics   map[string]any
	ctors     map[string][]reflect.Value
	listeners []accessor.Listener

	// sites caches the accessors of Get and Set by path text.
	sites sync.Map
}

// Stats is a snapshot of an engine's tiering counters.
type Stats struct {
	adaptive.Stats
	// Sites is the number of cached Get/Set call sites.
	Sites int
}

func New(opts ...Option) *Engine {
	o := Options{}
	for _, f := range opts {
		f(&o)
	}
	if o.Converter == nil {
		o.Converter = convert.Standard
	}
	if o.Bus == nil {
		o.Bus = eventbus.New()
	}

	e := &Engine{
		opts:     o,
		handlers: propertyhandler.New(),
		statics:  make(map[string]any),
		ctors:    make(map[string][]reflect.Value),
	}
	e.env = &accessor.Env{Converter: o.Converter, Handlers: e.handlers}
	e.compiler = compiled.New(e.env)
	e.registry = adaptive.NewRegistry(e.compiler, append([]adaptive.Option{adaptive.WithBus(o.Bus)}, o.Tiering...)...)

	if !o.NoProtobuf {
		h := protoprop.New(o.Converter)
		e.handlers.Register(protoprop.MessageType, h)
		e.handlers.Register(protoprop.ReflectType, h)
	}
	if o.AccessEvents {
		e.listeners = append(e.listeners, busListener{bus: o.Bus})
	}
	return e
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *eventbus.Bus { return e.opts.Bus }

// Handlers returns the property-handler registry. Handlers registered
// directly are not seen by call sites that are already compiled; use
// RegisterHandler to also deoptimize them and drop cached Get/Set sites.
func (e *Engine) Handlers() *propertyhandler.Registry { return e.handlers }

// Registry returns the compiled-unit registry.
func (e *Engine) Registry() *adaptive.Registry { return e.registry }

// RegisterHandler installs h for t. Compiled units fix their handler
// decisions when specialized, so every live unit is deoptimized.
func (e *Engine) RegisterHandler(t reflect.Type, h accessor.PropertyHandler) {
	e.handlers.Register(t, h)
	e.registry.Reset()
	e.sites.Clear()
}

// RegisterStatic makes v reachable as the root name of a path.
func (e *Engine) RegisterStatic(name string, v any) {
	e.mu.Lock()
	e.statics[name] = v
	e.mu.Unlock()
	e.sites.Clear()
}

// RegisterConstructor adds functions callable as "new name(...)". Overloads
// are tried in registration order. Each function must return one value, or a
// value and an error.
func (e *Engine) RegisterConstructor(name string, fns ...any) error {
	vs := make([]reflect.Value, 0, len(fns))
	for _, fn := range fns {
		v := reflect.ValueOf(fn)
		if v.Kind() != reflect.Func || v.IsNil() {
			return fmt.Errorf("constructor %s: %T is not a function", name, fn)
		}
		ft := v.Type()
		switch {
		case ft.NumOut() == 1:
		case ft.NumOut() == 2 && ft.Out(1) == reflect.TypeOf((*error)(nil)).Elem():
		default:
			return fmt.Errorf("constructor %s: %v must return a value or a value and an error", name, ft)
		}
		vs = append(vs, v)
	}
	e.mu.Lock()
	e.ctors[name] = append(e.ctors[name], vs...)
	e.mu.Unlock()
	e.sites.Clear()
	return nil
}

// RegisterType makes "new name()" allocate a zero value of sample's type and
// return a pointer to it.
func (e *Engine) RegisterType(name string, sample any) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return fmt.Errorf("type %s: nil sample", name)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	ft := reflect.FuncOf(nil, []reflect.Type{reflect.PointerTo(t)}, false)
	fn := reflect.MakeFunc(ft, func([]reflect.Value) []reflect.Value {
		return []reflect.Value{reflect.New(t)}
	})
	return e.RegisterConstructor(name, fn.Interface())
}

// AddListener adds l to every path compiled afterwards.
func (e *Engine) AddListener(l accessor.Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
	e.sites.Clear()
}

// Compile builds the path text for targets shaped like sample. A nil sample
// leaves the input type undeclared.
func (e *Engine) Compile(text string, sample any, opts ...CompileOption) (accessor.Accessor, error) {
	co := CompileOptions{strategy: e.opts.Strategy}
	for _, f := range opts {
		f(&co)
	}
	return e.compile(text, 0, reflect.TypeOf(sample), co)
}

// compile builds text found at byte position base of the outermost path.
// Nested paths share the strategy of their parent.
func (e *Engine) compile(text string, base int, in reflect.Type, co CompileOptions) (accessor.Accessor, error) {
	sc := &statement.Compiler{}
	sc.Build = func(expr string, offset int) (accessor.Accessor, error) {
		return e.compile(expr, base+offset, nil, co)
	}
	segs, err := pathparse.Parse(text, sc.Compile)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()
	b := &builder.Builder{Symbols: symbols{e}, Listeners: listeners, Env: e.env}
	head, err := b.Build(segs, in, co.scope)
	if err != nil {
		return nil, err
	}

	switch co.strategy {
	case Interpreted:
		return interp.New(head, e.env), nil
	case Compiled:
		return e.compiler.Compile(head)
	}
	site := siteid.New(text, base, len(text))
	return adaptive.New(site, head, interp.New(head, e.env), e.registry), nil
}

func (e *Engine) site(text string) (accessor.Accessor, error) {
	if acc, ok := e.sites.Load(text); ok {
		return acc.(accessor.Accessor), nil
	}
	acc, err := e.Compile(text, nil)
	if err != nil {
		return nil, err
	}
	actual, _ := e.sites.LoadOrStore(text, acc)
	return actual.(accessor.Accessor), nil
}

// Get evaluates text against target, which is also the root of nested
// argument paths.
func (e *Engine) Get(text string, target any, s *scope.Scope) (any, error) {
	acc, err := e.site(text)
	if err != nil {
		return nil, err
	}
	return acc.Get(target, target, s)
}

// Set assigns value through text on target.
func (e *Engine) Set(text string, target any, s *scope.Scope, value any) (any, error) {
	acc, err := e.site(text)
	if err != nil {
		return nil, err
	}
	return acc.Set(target, target, s, value)
}

// Reset deoptimizes every compiled call site of the engine.
func (e *Engine) Reset() { e.registry.Reset() }

func (e *Engine) Stats() Stats {
	n := 0
	e.sites.Range(func(_, _ any) bool {
		n++
		return true
	})
	return Stats{Stats: e.registry.Stats(), Sites: n}
}

type symbols struct{ e *Engine }

func (s symbols) Static(name string) (any, bool) {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	v, ok := s.e.statics[name]
	return v, ok
}

func (s symbols) Constructors(name string) []reflect.Value {
	s.e.mu.RLock()
	defer s.e.mu.RUnlock()
	return s.e.ctors[name]
}

// busListener publishes property accesses on the engine bus.
type busListener struct{ bus *eventbus.Bus }

func (l busListener) OnGet(name string, target any, _ *scope.Scope) {
	eventbus.Publish(context.Background(), l.bus, events.PropertyGet{Name: name, Target: target})
}

func (l busListener) OnSet(name string, target any, _ *scope.Scope, value any) {
	eventbus.Publish(context.Background(), l.bus, events.PropertySet{Name: name, Target: target, Value: value})
}
