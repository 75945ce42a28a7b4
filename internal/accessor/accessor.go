package accessor

import (
	"reflect"

	"github.com/hanpama/pathway/internal/convert"
	"github.com/hanpama/pathway/internal/scope"
)

// Accessor is the contract shared by every execution strategy of a chain.
//
// target is the value the chain navigates from; root is the root context of
// the enclosing expression, which argument statements are evaluated against.
// s may be nil when the expression has no free variables.
type Accessor interface {
	Get(target, root any, s *scope.Scope) (any, error)
	// Set writes value at the end of the chain and returns the value actually
	// stored, after coercion.
	Set(target, root any, s *scope.Scope, value any) (any, error)
	// KnownEgressType is the declared result type of the chain, or nil when
	// it cannot be known statically.
	KnownEgressType() reflect.Type
}

// Statement is a precompiled, reusable executable unit such as a method
// argument or a computed index.
type Statement interface {
	Value(target, root any, s *scope.Scope) (any, error)
}

// TypedStatement is a Statement whose result type is known statically.
type TypedStatement interface {
	Statement
	KnownEgressType() reflect.Type
}

// Constant is implemented by statements whose value never changes. Builder
// embeds constant indices into the chain.
type Constant interface {
	Statement
	Constant() any
}

// StatementFunc adapts a function to Statement.
type StatementFunc func(target, root any, s *scope.Scope) (any, error)

func (f StatementFunc) Value(target, root any, s *scope.Scope) (any, error) {
	return f(target, root, s)
}

// Literal is a constant statement.
type Literal struct {
	V any
}

var _ Constant = Literal{}

func (l Literal) Value(any, any, *scope.Scope) (any, error) { return l.V, nil }
func (l Literal) Constant() any                             { return l.V }
func (l Literal) KnownEgressType() reflect.Type             { return reflect.TypeOf(l.V) }

// Listener observes property reads and writes before they happen. Listeners
// never alter control flow.
type Listener interface {
	OnGet(name string, target any, s *scope.Scope)
	OnSet(name string, target any, s *scope.Scope, value any)
}

// Env bundles the collaborators both strategies consult at run time.
type Env struct {
	Converter convert.Converter
	Handlers  HandlerLookup
}

// NewEnv returns an Env with the standard converter and no handlers.
func NewEnv() *Env {
	return &Env{Converter: convert.Standard}
}

// Conv returns the configured converter or the standard one.
func (e *Env) Conv() convert.Converter {
	if e == nil || e.Converter == nil {
		return convert.Standard
	}
	return e.Converter
}

// Handler returns the property handler registered for t, if any.
func (e *Env) Handler(t reflect.Type) PropertyHandler {
	if e == nil || e.Handlers == nil || t == nil {
		return nil
	}
	return e.Handlers.Lookup(t)
}
