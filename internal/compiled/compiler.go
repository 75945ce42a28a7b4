// Package compiled specializes accessor chains into composed closures.
//
// Member lookups, overload candidates and literal indices are resolved once,
// at compile time, for every node whose incoming type is declared. Each
// specialized node checks the exact dynamic type of its input before using
// what it resolved; a value of any other type, or nil, is handed to the
// interpreted step for that node. Untyped nodes keep a monomorphic inline
// cache keyed by the last type seen.
//
// Compile never evaluates a node, so declining a chain has no side effects on
// the target.
package compiled

import (
	"reflect"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/interp"
	"github.com/hanpama/pathway/internal/member"
	"github.com/hanpama/pathway/internal/scope"
)

type getFn func(cur, root any, s *scope.Scope) (any, error)

type setFn func(cur, root any, s *scope.Scope, value any) (any, error)

// Accessor is a chain specialized into closures.
type Accessor struct {
	get    getFn
	set    setFn
	egress reflect.Type
}

var _ accessor.Accessor = (*Accessor)(nil)

func (a *Accessor) Get(target, root any, s *scope.Scope) (any, error) {
	return a.get(target, root, s)
}

func (a *Accessor) Set(target, root any, s *scope.Scope, value any) (any, error) {
	return a.set(target, root, s, value)
}

func (a *Accessor) KnownEgressType() reflect.Type { return a.egress }

// Compiler builds compiled accessors against one Env.
type Compiler struct {
	env *accessor.Env
}

// New returns a Compiler. A nil env uses the standard converter and no
// property handlers.
func New(env *accessor.Env) *Compiler {
	if env == nil {
		env = accessor.NewEnv()
	}
	return &Compiler{env: env}
}

// Compile specializes the chain at head. It returns a
// *accessor.CompilationNotSupportedError when the chain cannot be compiled.
func (c *Compiler) Compile(head *accessor.Node) (accessor.Accessor, error) {
	if head == nil {
		return nil, &accessor.CompilationNotSupportedError{Reason: "empty chain"}
	}
	if err := c.check(head, false); err != nil {
		return nil, err
	}
	term := accessor.SetTerminal(head)
	return &Accessor{
		get:    c.getChain(head),
		set:    c.setChain(head, term),
		egress: accessor.EgressType(head),
	}, nil
}

// check rejects chains the compiler cannot specialize. assign is true for
// with-block assignment paths.
func (c *Compiler) check(head *accessor.Node, assign bool) error {
	for n := head; n != nil; n = n.Next() {
		switch n.Kind {
		case accessor.KindProperty, accessor.KindMethod, accessor.KindIndex,
			accessor.KindConstructor, accessor.KindStatic, accessor.KindNotify:
		case accessor.KindNullSafe:
			if assign {
				return &accessor.CompilationNotSupportedError{Node: n.Kind, Reason: "null-safe guard in with-block assignment"}
			}
		case accessor.KindWith:
			if assign {
				return &accessor.CompilationNotSupportedError{Node: n.Kind, Reason: "nested with-block in assignment"}
			}
			for _, a := range n.With {
				if a.Path == nil {
					return &accessor.CompilationNotSupportedError{Node: n.Kind, Reason: "empty assignment path"}
				}
				if err := c.check(a.Path, true); err != nil {
					return err
				}
			}
		default:
			return &accessor.CompilationNotSupportedError{Node: n.Kind, Name: n.Name, Reason: "unknown node kind"}
		}
		if n.In != nil {
			if _, ok := c.env.Handler(n.In).(accessor.NoSpecialization); ok {
				return &accessor.CompilationNotSupportedError{Node: n.Kind, Name: n.Name, Reason: "handler for " + n.In.String() + " opts out"}
			}
		}
	}
	return nil
}

// getChain composes the read closures of every node from head to the end.
func (c *Compiler) getChain(head *accessor.Node) getFn {
	nodes := accessor.Nodes(head)
	var next getFn
	for i := len(nodes) - 1; i >= 0; i-- {
		next = c.link(nodes[i], next)
	}
	return next
}

func (c *Compiler) link(n *accessor.Node, next getFn) getFn {
	if n.Kind == accessor.KindNullSafe {
		if next == nil {
			return func(cur, root any, s *scope.Scope) (any, error) {
				if member.IsNil(cur) {
					return nil, nil
				}
				return cur, nil
			}
		}
		return func(cur, root any, s *scope.Scope) (any, error) {
			if member.IsNil(cur) {
				return nil, nil
			}
			return next(cur, root, s)
		}
	}
	step := c.step(n)
	if next == nil {
		return step
	}
	return func(cur, root any, s *scope.Scope) (any, error) {
		v, err := step(cur, root, s)
		if err != nil {
			return nil, err
		}
		return next(v, root, s)
	}
}

// setChain composes the reads from head up to term followed by the write at
// term.
func (c *Compiler) setChain(head, term *accessor.Node) setFn {
	if term == nil {
		return func(cur, root any, s *scope.Scope, value any) (any, error) {
			return nil, accessor.NewAccessError("set", "", cur, accessor.ErrNotAssignable)
		}
	}
	var prefix []*accessor.Node
	for n := head; n != term; n = n.Next() {
		prefix = append(prefix, n)
	}
	next := c.stepSet(term)
	for i := len(prefix) - 1; i >= 0; i-- {
		next = c.linkSet(prefix[i], next, i == len(prefix)-1)
	}
	return next
}

func (c *Compiler) linkSet(n *accessor.Node, next setFn, last bool) setFn {
	switch {
	case n.Kind == accessor.KindNullSafe:
		return func(cur, root any, s *scope.Scope, value any) (any, error) {
			if member.IsNil(cur) {
				return nil, nil
			}
			return next(cur, root, s, value)
		}
	case n.Kind == accessor.KindNotify && last:
		name, ls := n.Name, n.Listeners
		return func(cur, root any, s *scope.Scope, value any) (any, error) {
			for _, l := range ls {
				l.OnSet(name, cur, s, value)
			}
			return next(cur, root, s, value)
		}
	}
	step := c.step(n)
	return func(cur, root any, s *scope.Scope, value any) (any, error) {
		v, err := step(cur, root, s)
		if err != nil {
			return nil, err
		}
		return next(v, root, s, value)
	}
}

// step returns the read closure of a single node.
func (c *Compiler) step(n *accessor.Node) getFn {
	switch n.Kind {
	case accessor.KindStatic:
		name, v := n.Name, n.Static
		return func(_, _ any, s *scope.Scope) (any, error) {
			if r, ok := s.Lookup(name); ok {
				return r.Value(), nil
			}
			return v, nil
		}
	case accessor.KindNotify:
		name, ls := n.Name, n.Listeners
		return func(cur, root any, s *scope.Scope) (any, error) {
			for _, l := range ls {
				l.OnGet(name, cur, s)
			}
			return cur, nil
		}
	case accessor.KindProperty:
		return c.property(n)
	case accessor.KindMethod:
		return c.method(n)
	case accessor.KindIndex:
		return c.index(n)
	case accessor.KindWith:
		return c.with(n)
	case accessor.KindConstructor:
		return c.constructor(n)
	}
	env := c.env
	return func(cur, root any, s *scope.Scope) (any, error) {
		return interp.Step(env, n, cur, root, s)
	}
}

// stepSet returns the write closure of a terminal node.
func (c *Compiler) stepSet(n *accessor.Node) setFn {
	switch n.Kind {
	case accessor.KindProperty:
		return c.propertySet(n)
	case accessor.KindIndex:
		return c.indexSet(n)
	}
	env := c.env
	return func(cur, root any, s *scope.Scope, value any) (any, error) {
		return interp.StepSet(env, n, cur, root, s, value)
	}
}

// exact returns the reflected cur when it is a non-nil value of exactly t.
func exact(cur any, t reflect.Type) (reflect.Value, bool) {
	if cur == nil {
		return reflect.Value{}, false
	}
	rv := reflect.ValueOf(cur)
	if rv.Type() != t {
		return rv, false
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			return rv, false
		}
	}
	return rv, true
}
