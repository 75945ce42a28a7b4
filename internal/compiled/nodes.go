package compiled

import (
	"reflect"
	"sync/atomic"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/member"
	"github.com/hanpama/pathway/internal/scope"
)

// propEntry is a property resolved for one dynamic type.
type propEntry struct {
	t reflect.Type
	p *member.Property
}

// methodEntry is the overload set resolved for one dynamic type.
type methodEntry struct {
	t     reflect.Type
	cands []*member.Callable
}

func (c *Compiler) property(n *accessor.Node) getFn {
	env, name := c.env, n.Name
	fallback := func(cur any, s *scope.Scope) (any, error) {
		return interp.GetProperty(env, name, cur, s)
	}

	var read getFn
	switch {
	case n.In != nil && env.Handler(n.In) != nil:
		read = func(cur, _ any, s *scope.Scope) (any, error) { return fallback(cur, s) }
		if b, ok := bind(env, n.In, name); ok {
			t := n.In
			read = func(cur, _ any, s *scope.Scope) (any, error) {
				if _, ok := exact(cur, t); ok {
					v, err := b.Get(cur)
					return v, member.Wrap("property", name, cur, err)
				}
				return fallback(cur, s)
			}
		}
	case n.In != nil:
		p, ok := member.LookupProperty(n.In, name)
		if !ok {
			read = func(cur, _ any, s *scope.Scope) (any, error) { return fallback(cur, s) }
			break
		}
		t := n.In
		read = func(cur, _ any, s *scope.Scope) (any, error) {
			if rv, ok := exact(cur, t); ok {
				return p.Get(rv)
			}
			return fallback(cur, s)
		}
	default:
		var cache atomic.Pointer[propEntry]
		read = func(cur, _ any, s *scope.Scope) (any, error) {
			if member.IsNil(cur) {
				return fallback(cur, s)
			}
			rv := reflect.ValueOf(cur)
			t := rv.Type()
			if e := cache.Load(); e != nil && e.t == t {
				return e.p.Get(rv)
			}
			if env.Handler(t) != nil {
				return fallback(cur, s)
			}
			p, ok := member.LookupProperty(t, name)
			if !ok {
				return fallback(cur, s)
			}
			cache.Store(&propEntry{t: t, p: p})
			return p.Get(rv)
		}
	}

	if !n.Root {
		return read
	}
	return func(cur, root any, s *scope.Scope) (any, error) {
		if r, ok := s.Lookup(name); ok {
			return r.Value(), nil
		}
		return read(cur, root, s)
	}
}

func (c *Compiler) propertySet(n *accessor.Node) setFn {
	env, name := c.env, n.Name
	fallback := func(cur any, s *scope.Scope, value any) (any, error) {
		return interp.SetProperty(env, name, cur, s, value)
	}

	var write setFn
	switch {
	case n.In != nil && env.Handler(n.In) != nil:
		write = func(cur, _ any, s *scope.Scope, value any) (any, error) { return fallback(cur, s, value) }
		if b, ok := bind(env, n.In, name); ok {
			t := n.In
			write = func(cur, _ any, s *scope.Scope, value any) (any, error) {
				if _, ok := exact(cur, t); ok {
					v, err := b.Set(cur, value)
					return v, member.Wrap("property", name, cur, err)
				}
				return fallback(cur, s, value)
			}
		}
	case n.In != nil:
		p, ok := member.LookupProperty(n.In, name)
		if !ok {
			write = func(cur, _ any, s *scope.Scope, value any) (any, error) { return fallback(cur, s, value) }
			break
		}
		t, conv := n.In, env.Conv()
		write = func(cur, _ any, s *scope.Scope, value any) (any, error) {
			if rv, ok := exact(cur, t); ok {
				return p.Set(rv, value, conv)
			}
			return fallback(cur, s, value)
		}
	default:
		var cache atomic.Pointer[propEntry]
		conv := env.Conv()
		write = func(cur, _ any, s *scope.Scope, value any) (any, error) {
			if member.IsNil(cur) {
				return fallback(cur, s, value)
			}
			rv := reflect.ValueOf(cur)
			t := rv.Type()
			if e := cache.Load(); e != nil && e.t == t {
				return e.p.Set(rv, value, conv)
			}
			if env.Handler(t) != nil {
				return fallback(cur, s, value)
			}
			p, ok := member.LookupProperty(t, name)
			if !ok {
				return fallback(cur, s, value)
			}
			cache.Store(&propEntry{t: t, p: p})
			return p.Set(rv, value, conv)
		}
	}

	if !n.Root {
		return write
	}
	return func(cur, root any, s *scope.Scope, value any) (any, error) {
		if r, ok := s.Lookup(name); ok {
			if err := r.SetValue(value); err != nil {
				return nil, err
			}
			return r.Value(), nil
		}
		return write(cur, root, s, value)
	}
}

func bind(env *accessor.Env, t reflect.Type, name string) (accessor.PropertyBinding, bool) {
	b, ok := env.Handler(t).(accessor.PropertyBinder)
	if !ok {
		return nil, false
	}
	return b.BindProperty(t, name)
}

func (c *Compiler) method(n *accessor.Node) getFn {
	env, name, stmts, conv := c.env, n.Name, n.Args, c.env.Conv()

	var invoke func(cur any, args []any) (any, error)
	if t := n.In; t != nil {
		cands := member.LookupMethods(t, name)
		invoke = func(cur any, args []any) (any, error) {
			if rv, ok := exact(cur, t); ok && len(cands) > 0 {
				m, in, err := member.Resolve(cands, args, conv)
				if err != nil {
					return nil, err
				}
				return m.Call(rv, in)
			}
			return interp.CallMethod(env, name, cur, args)
		}
	} else {
		var cache atomic.Pointer[methodEntry]
		invoke = func(cur any, args []any) (any, error) {
			if member.IsNil(cur) {
				return interp.CallMethod(env, name, cur, args)
			}
			rv := reflect.ValueOf(cur)
			t := rv.Type()
			e := cache.Load()
			if e == nil || e.t != t {
				cands := member.LookupMethods(t, name)
				if len(cands) == 0 {
					return interp.CallMethod(env, name, cur, args)
				}
				e = &methodEntry{t: t, cands: cands}
				cache.Store(e)
			}
			m, in, err := member.Resolve(e.cands, args, conv)
			if err != nil {
				return nil, err
			}
			return m.Call(rv, in)
		}
	}

	root := n.Root
	return func(cur, rootVal any, s *scope.Scope) (any, error) {
		args, err := interp.Args(stmts, rootVal, s)
		if err != nil {
			return nil, err
		}
		if root {
			if r, ok := s.Lookup(name); ok {
				return member.InvokeFunc(name, r.Value(), args, conv)
			}
		}
		return invoke(cur, args)
	}
}

func (c *Compiler) constructor(n *accessor.Node) getFn {
	cands := make([]*member.Callable, len(n.Ctors))
	for i, fn := range n.Ctors {
		cands[i] = member.FuncCallable(n.Name, fn)
	}
	stmts, conv := n.Args, c.env.Conv()
	return func(_, root any, s *scope.Scope) (any, error) {
		args, err := interp.Args(stmts, root, s)
		if err != nil {
			return nil, err
		}
		ctor, in, err := member.Resolve(cands, args, conv)
		if err != nil {
			return nil, err
		}
		return ctor.Call(reflect.Value{}, in)
	}
}

// position returns the literal list index of n when it is fixed at compile
// time for a declared slice or array type.
func position(n *accessor.Node, conv convert.Converter) (int, reflect.Type, bool) {
	if !n.HasConst || n.In == nil || n.Const == nil {
		return 0, nil, false
	}
	t := n.In
	switch {
	case t.Kind() == reflect.Slice, t.Kind() == reflect.Array:
	case t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Array:
	default:
		return 0, nil, false
	}
	v, err := conv.Convert(n.Const, reflect.TypeOf(0))
	if err != nil {
		return 0, nil, false
	}
	return v.(int), t, true
}

// mapKey returns the literal key of n coerced to the declared map key type.
func mapKey(n *accessor.Node, c *Compiler) (reflect.Value, reflect.Type, bool) {
	if !n.HasConst || n.In == nil || n.In.Kind() != reflect.Map {
		return reflect.Value{}, nil, false
	}
	k, err := member.Coerce(n.Const, n.In.Key(), c.env.Conv())
	if err != nil {
		return reflect.Value{}, nil, false
	}
	return k, n.In, true
}

func (c *Compiler) index(n *accessor.Node) getFn {
	env := c.env
	slow := func(cur, root any, s *scope.Scope) (any, error) {
		return interp.Step(env, n, cur, root, s)
	}
	if i, t, ok := position(n, env.Conv()); ok {
		return func(cur, root any, s *scope.Scope) (any, error) {
			if rv, ok := exact(cur, t); ok {
				if rv.Kind() == reflect.Ptr {
					rv = rv.Elem()
				}
				if i >= 0 && i < rv.Len() {
					return rv.Index(i).Interface(), nil
				}
			}
			return slow(cur, root, s)
		}
	}
	if k, t, ok := mapKey(n, c); ok {
		return func(cur, root any, s *scope.Scope) (any, error) {
			if rv, ok := exact(cur, t); ok {
				v := rv.MapIndex(k)
				if !v.IsValid() {
					return nil, nil
				}
				return v.Interface(), nil
			}
			return slow(cur, root, s)
		}
	}
	return slow
}

func (c *Compiler) indexSet(n *accessor.Node) setFn {
	env := c.env
	slow := func(cur, root any, s *scope.Scope, value any) (any, error) {
		return interp.StepSet(env, n, cur, root, s, value)
	}
	conv := env.Conv()
	if i, t, ok := position(n, conv); ok {
		return func(cur, root any, s *scope.Scope, value any) (any, error) {
			if rv, ok := exact(cur, t); ok {
				if rv.Kind() == reflect.Ptr {
					rv = rv.Elem()
				}
				if i >= 0 && i < rv.Len() && rv.Index(i).CanSet() {
					el := rv.Index(i)
					v, err := member.Coerce(value, el.Type(), conv)
					if err != nil {
						return nil, err
					}
					el.Set(v)
					return v.Interface(), nil
				}
			}
			return slow(cur, root, s, value)
		}
	}
	return slow
}

func (c *Compiler) with(n *accessor.Node) getFn {
	env := c.env
	type assignment struct {
		value accessor.Statement
		set   setFn
	}
	as := make([]assignment, len(n.With))
	for i, a := range n.With {
		as[i] = assignment{value: a.Value, set: c.setChain(a.Path, accessor.SetTerminal(a.Path))}
	}
	return func(cur, root any, s *scope.Scope) (any, error) {
		if member.IsNil(cur) {
			return interp.Step(env, n, cur, root, s)
		}
		for _, a := range as {
			v, err := a.value.Value(cur, root, s)
			if err != nil {
				return nil, err
			}
			if _, err := a.set(cur, root, s, v); err != nil {
				return nil, err
			}
		}
		return cur, nil
	}
}
