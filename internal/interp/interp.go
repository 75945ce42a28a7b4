// Package interp executes accessor chains by runtime introspection.
//
// Every call inspects the actual type of each intermediate value, so an
// interpreted accessor tolerates any shape of input. It is the fallback of
// record for the other strategies: a compiled node whose guard misses calls
// Step or StepSet for that node.
package interp

import (
	"fmt"
	"reflect"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/member"
	"github.com/hanpama/pathway/internal/scope"
)

// Accessor is the interpreted strategy over one chain.
type Accessor struct {
	head *accessor.Node
	term *accessor.Node
	env  *accessor.Env
}

var _ accessor.Accessor = (*Accessor)(nil)

// New returns an interpreted accessor. An empty chain yields the target
// itself.
func New(head *accessor.Node, env *accessor.Env) *Accessor {
	if env == nil {
		env = accessor.NewEnv()
	}
	return &Accessor{head: head, term: accessor.SetTerminal(head), env: env}
}

func (a *Accessor) Get(target, root any, s *scope.Scope) (any, error) {
	return get(a.env, a.head, target, root, s)
}

func (a *Accessor) Set(target, root any, s *scope.Scope, value any) (any, error) {
	return set(a.env, a.head, a.term, target, root, s, value)
}

func (a *Accessor) KnownEgressType() reflect.Type { return accessor.EgressType(a.head) }

func get(env *accessor.Env, head *accessor.Node, cur, root any, s *scope.Scope) (any, error) {
	for n := head; n != nil; n = n.Next() {
		if n.Kind == accessor.KindNullSafe {
			if member.IsNil(cur) {
				return nil, nil
			}
			continue
		}
		v, err := Step(env, n, cur, root, s)
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return cur, nil
}

func set(env *accessor.Env, head, term *accessor.Node, cur, root any, s *scope.Scope, value any) (any, error) {
	if term == nil {
		return nil, accessor.NewAccessError("set", "", cur, accessor.ErrNotAssignable)
	}
	for n := head; n != term; n = n.Next() {
		switch {
		case n.Kind == accessor.KindNullSafe:
			if member.IsNil(cur) {
				return nil, nil
			}
			continue
		case n.Kind == accessor.KindNotify && n.Next() == term:
			for _, l := range n.Listeners {
				l.OnSet(n.Name, cur, s, value)
			}
			continue
		}
		v, err := Step(env, n, cur, root, s)
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return StepSet(env, term, cur, root, s, value)
}

// Step performs the read of a single node against cur.
func Step(env *accessor.Env, n *accessor.Node, cur, root any, s *scope.Scope) (any, error) {
	switch n.Kind {
	case accessor.KindNullSafe:
		return cur, nil
	case accessor.KindNotify:
		for _, l := range n.Listeners {
			l.OnGet(n.Name, cur, s)
		}
		return cur, nil
	case accessor.KindStatic:
		if r, ok := s.Lookup(n.Name); ok {
			return r.Value(), nil
		}
		return n.Static, nil
	case accessor.KindProperty:
		if n.Root {
			if r, ok := s.Lookup(n.Name); ok {
				return r.Value(), nil
			}
		}
		return GetProperty(env, n.Name, cur, s)
	case accessor.KindMethod:
		args, err := Args(n.Args, root, s)
		if err != nil {
			return nil, err
		}
		if n.Root {
			if r, ok := s.Lookup(n.Name); ok {
				return member.InvokeFunc(n.Name, r.Value(), args, env.Conv())
			}
		}
		return CallMethod(env, n.Name, cur, args)
	case accessor.KindIndex:
		idx, err := IndexValue(n, root, s)
		if err != nil {
			return nil, err
		}
		if member.IsNil(cur) {
			return nil, accessor.NewAccessError("index", fmt.Sprint(idx), cur, accessor.ErrNilTarget)
		}
		return member.IndexGet(reflect.ValueOf(cur), idx, env.Conv())
	case accessor.KindWith:
		if member.IsNil(cur) {
			return nil, accessor.NewAccessError("with", "", cur, accessor.ErrNilTarget)
		}
		for _, a := range n.With {
			v, err := a.Value.Value(cur, root, s)
			if err != nil {
				return nil, err
			}
			if _, err := set(env, a.Path, accessor.SetTerminal(a.Path), cur, root, s, v); err != nil {
				return nil, err
			}
		}
		return cur, nil
	case accessor.KindConstructor:
		args, err := Args(n.Args, root, s)
		if err != nil {
			return nil, err
		}
		cands := make([]*member.Callable, len(n.Ctors))
		for i, fn := range n.Ctors {
			cands[i] = member.FuncCallable(n.Name, fn)
		}
		c, in, err := member.Resolve(cands, args, env.Conv())
		if err != nil {
			return nil, err
		}
		return c.Call(reflect.Value{}, in)
	}
	return nil, accessor.NewAccessError(n.Kind.String(), n.Name, cur, accessor.ErrNotFound)
}

// StepSet performs the write of a terminal node against cur.
func StepSet(env *accessor.Env, n *accessor.Node, cur, root any, s *scope.Scope, value any) (any, error) {
	switch n.Kind {
	case accessor.KindProperty:
		if n.Root {
			if r, ok := s.Lookup(n.Name); ok {
				if err := r.SetValue(value); err != nil {
					return nil, err
				}
				return r.Value(), nil
			}
		}
		return SetProperty(env, n.Name, cur, s, value)
	case accessor.KindIndex:
		idx, err := IndexValue(n, root, s)
		if err != nil {
			return nil, err
		}
		if member.IsNil(cur) {
			return nil, accessor.NewAccessError("index", fmt.Sprint(idx), cur, accessor.ErrNilTarget)
		}
		return member.IndexSet(reflect.ValueOf(cur), idx, value, env.Conv())
	}
	return nil, accessor.NewAccessError(n.Kind.String(), n.Name, cur, accessor.ErrNotAssignable)
}

// GetProperty reads name from cur, consulting property handlers first.
func GetProperty(env *accessor.Env, name string, cur any, s *scope.Scope) (any, error) {
	if member.IsNil(cur) {
		return nil, accessor.NewAccessError("property", name, cur, accessor.ErrNilTarget)
	}
	t := reflect.TypeOf(cur)
	if h := env.Handler(t); h != nil {
		v, err := h.GetProperty(name, cur, s)
		return v, member.Wrap("property", name, cur, err)
	}
	p, ok := member.LookupProperty(t, name)
	if !ok {
		return nil, accessor.NewAccessError("property", name, cur, accessor.ErrNotFound)
	}
	return p.Get(reflect.ValueOf(cur))
}

// SetProperty writes name on cur, consulting property handlers first.
func SetProperty(env *accessor.Env, name string, cur any, s *scope.Scope, value any) (any, error) {
	if member.IsNil(cur) {
		return nil, accessor.NewAccessError("property", name, cur, accessor.ErrNilTarget)
	}
	t := reflect.TypeOf(cur)
	if h := env.Handler(t); h != nil {
		v, err := h.SetProperty(name, cur, s, value)
		return v, member.Wrap("property", name, cur, err)
	}
	p, ok := member.LookupProperty(t, name)
	if !ok {
		return nil, accessor.NewAccessError("property", name, cur, accessor.ErrNotFound)
	}
	return p.Set(reflect.ValueOf(cur), value, env.Conv())
}

// CallMethod invokes method name on cur. A function-valued property of the
// same name is called when cur has no such method.
func CallMethod(env *accessor.Env, name string, cur any, args []any) (any, error) {
	if member.IsNil(cur) {
		return nil, accessor.NewAccessError("method", name, cur, accessor.ErrNilTarget)
	}
	rv := reflect.ValueOf(cur)
	cands := member.LookupMethods(rv.Type(), name)
	if len(cands) == 0 {
		p, ok := member.LookupProperty(rv.Type(), name)
		if !ok {
			return nil, accessor.NewAccessError("method", name, cur, accessor.ErrNotFound)
		}
		fn, err := p.Get(rv)
		if err != nil {
			return nil, err
		}
		return member.InvokeFunc(name, fn, args, env.Conv())
	}
	c, in, err := member.Resolve(cands, args, env.Conv())
	if err != nil {
		return nil, err
	}
	return c.Call(rv, in)
}

// Args evaluates argument statements against root.
func Args(stmts []accessor.Statement, root any, s *scope.Scope) ([]any, error) {
	if len(stmts) == 0 {
		return nil, nil
	}
	out := make([]any, len(stmts))
	for i, st := range stmts {
		v, err := st.Value(root, root, s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// IndexValue returns the literal index of n or evaluates its index statement.
func IndexValue(n *accessor.Node, root any, s *scope.Scope) (any, error) {
	if n.HasConst {
		return n.Const, nil
	}
	if n.Index == nil {
		return nil, accessor.NewAccessError("index", "", nil, accessor.ErrIndex)
	}
	return n.Index.Value(root, root, s)
}
