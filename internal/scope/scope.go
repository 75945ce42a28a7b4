// Package scope implements the hierarchical variable-resolution chain consulted
// while an accessor chain evaluates.
//
// A Scope is one level of lexical or runtime scope: a named map of bindings, an
// optional positional slot table for names known when the enclosing block was
// compiled, a parent to delegate to, and a tilt flag meaning "stop evaluating
// and unwind". Lookups walk local names, then local slots, then the parent; the
// first scope that owns a name wins, so nearer bindings shadow outer ones.
//
// Scopes are owned by a single evaluation and are not safe for concurrent use.
package scope

import (
	"fmt"
	"reflect"

	"github.com/hanpama/pathway/internal/convert"
)

// Resolver is a value holder for one variable.
type Resolver interface {
	Name() string
	Value() any
	SetValue(v any) error
	// Type is the declared type of the variable, or nil when untyped.
	Type() reflect.Type
}

type binding struct {
	name  string
	value any
	typ   reflect.Type
	conv  convert.Converter
}

func (b *binding) Name() string       { return b.name }
func (b *binding) Value() any         { return b.value }
func (b *binding) Type() reflect.Type { return b.typ }

func (b *binding) SetValue(v any) error {
	if b.typ == nil {
		b.value = v
		return nil
	}
	out, err := b.conv.Convert(v, b.typ)
	if err != nil {
		return err
	}
	b.value = out
	return nil
}

// Scope is one level of the resolution chain.
type Scope struct {
	parent   *Scope
	names    map[string]*binding
	slots    []*binding
	slotIdx  map[string]int
	isolated bool
	tilt     bool
	conv     convert.Converter
}

// Option configures a Scope.
type Option func(*Scope)

// WithConverter sets the converter used to coerce values written to typed variables.
func WithConverter(c convert.Converter) Option { return func(s *Scope) { s.conv = c } }

// Isolated marks the scope as a tilt boundary.
func Isolated() Option { return func(s *Scope) { s.isolated = true } }

// New creates a scope whose parent is parent (nil for a root scope).
// The converter is inherited from the parent unless overridden.
func New(parent *Scope, opts ...Option) *Scope {
	s := &Scope{parent: parent}
	if parent != nil {
		s.conv = parent.conv
	}
	for _, o := range opts {
		o(s)
	}
	if s.conv == nil {
		s.conv = convert.Standard
	}
	return s
}

// NewIsolated creates a scope used at function-call boundaries: tilt signals
// raised in its body stop here instead of reaching the caller.
func NewIsolated(parent *Scope, opts ...Option) *Scope {
	return New(parent, append(opts, Isolated())...)
}

// NewIndexed creates a scope with one positional slot per name, in order.
// Slots start bound to nil.
func NewIndexed(parent *Scope, names []string, opts ...Option) *Scope {
	s := New(parent, opts...)
	s.slots = make([]*binding, len(names))
	s.slotIdx = make(map[string]int, len(names))
	for i, n := range names {
		s.slots[i] = &binding{name: n, conv: s.conv}
		s.slotIdx[n] = i
	}
	return s
}

// Parent returns the next scope to consult, or nil.
func (s *Scope) Parent() *Scope { return s.parent }

// IsIsolated reports whether the scope is a tilt boundary.
func (s *Scope) IsIsolated() bool { return s.isolated }

// local returns the binding owned by this scope, if any.
func (s *Scope) local(name string) (*binding, bool) {
	if b, ok := s.names[name]; ok {
		return b, true
	}
	if i, ok := s.slotIdx[name]; ok {
		return s.slots[i], true
	}
	return nil, false
}

// owner finds the nearest scope owning name.
func (s *Scope) owner(name string) (*binding, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.local(name); ok {
			return b, true
		}
	}
	return nil, false
}

// Lookup returns the nearest binding for name.
func (s *Scope) Lookup(name string) (Resolver, bool) {
	if s == nil {
		return nil, false
	}
	b, ok := s.owner(name)
	if !ok {
		return nil, false
	}
	return b, true
}

// GetResolver returns the nearest binding for name or an UnresolvableVariableError.
func (s *Scope) GetResolver(name string) (Resolver, error) {
	if r, ok := s.Lookup(name); ok {
		return r, nil
	}
	return nil, &UnresolvableVariableError{Name: name}
}

// IsResolvable reports whether any scope in the chain owns name.
func (s *Scope) IsResolvable(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// IsTarget reports whether this scope itself owns name.
func (s *Scope) IsTarget(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.local(name)
	return ok
}

// CreateVariable assigns value to name. The existing owner anywhere in the
// chain is updated; when no scope owns the name it is created here.
func (s *Scope) CreateVariable(name string, value any) (Resolver, error) {
	if b, ok := s.owner(name); ok {
		if err := b.SetValue(value); err != nil {
			return nil, err
		}
		return b, nil
	}
	return s.Define(name, value), nil
}

// CreateTypedVariable declares name in this scope with a fixed type, shadowing
// any outer binding. Declaring the same typed name twice in one scope fails.
func (s *Scope) CreateTypedVariable(name string, value any, t reflect.Type) (Resolver, error) {
	if b, ok := s.local(name); ok && b.typ != nil {
		return nil, fmt.Errorf("variable %q already defined in scope as %v", name, b.typ)
	}
	b := &binding{name: name, typ: t, conv: s.conv}
	if err := b.SetValue(value); err != nil {
		return nil, err
	}
	s.put(b)
	return b, nil
}

// Define binds name in this scope without consulting the parents.
func (s *Scope) Define(name string, value any) Resolver {
	if b, ok := s.local(name); ok {
		b.value = value
		b.typ = nil
		return b
	}
	b := &binding{name: name, value: value, conv: s.conv}
	s.put(b)
	return b
}

func (s *Scope) put(b *binding) {
	if i, ok := s.slotIdx[b.name]; ok {
		s.slots[i] = b
		return
	}
	if s.names == nil {
		s.names = make(map[string]*binding)
	}
	s.names[b.name] = b
}

// NumSlots returns the size of the positional table.
func (s *Scope) NumSlots() int { return len(s.slots) }

// IndexOf returns the slot holding name in this scope, or -1.
func (s *Scope) IndexOf(name string) int {
	if i, ok := s.slotIdx[name]; ok {
		return i
	}
	return -1
}

// GetIndexed returns the binding in slot i. It panics when i is out of range,
// which indicates a slot layout that disagrees with the compiled block.
func (s *Scope) GetIndexed(i int) Resolver {
	return s.slots[i]
}

// CreateIndexed binds slot i to name and value, replacing whatever the slot held.
func (s *Scope) CreateIndexed(i int, name string, value any) Resolver {
	b := s.slots[i]
	if b.name != name {
		delete(s.slotIdx, b.name)
		s.slotIdx[name] = i
		b = &binding{name: name, conv: s.conv}
		s.slots[i] = b
	}
	b.value = value
	b.typ = nil
	return b
}

// SetTilt raises or clears the tilt flag. Unless the scope is isolated the
// change cascades to every parent so enclosing blocks observe it.
func (s *Scope) SetTilt(v bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.tilt = v
		if cur.isolated {
			return
		}
	}
}

// IsTilted reports whether evaluation in this scope should unwind.
func (s *Scope) IsTilted() bool {
	return s != nil && s.tilt
}

// Names returns the names owned by this scope, slots first.
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.slots)+len(s.names))
	for _, b := range s.slots {
		out = append(out, b.name)
	}
	for n := range s.names {
		out = append(out, n)
	}
	return out
}
