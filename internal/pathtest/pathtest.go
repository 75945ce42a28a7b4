// Package pathtest holds fixtures shared by the strategy and engine tests.
package pathtest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/builder"
	"github.com/hanpama/pathway/internal/pathparse"
	"github.com/hanpama/pathway/internal/scope"
	"github.com/hanpama/pathway/internal/statement"
)

type Address struct {
	City  string
	Zip   int
	Lines []string
}

type User struct {
	Name    string
	Age     int
	Address *Address
	Tags    []string
	Attrs   map[string]any
	Friends []*User
	Scores  [3]int

	nick string
}

func (u *User) Nickname() string     { return u.nick }
func (u *User) SetNickname(n string) { u.nick = n }

func (u *User) Greet(greeting string) string { return greeting + ", " + u.Name }

func (u *User) Describe(sep string, parts ...string) string {
	return u.Name + sep + strings.Join(parts, sep)
}

func (u *User) Fail() (string, error) { return "", errors.New("host failure") }

func (u *User) FriendAt(i int) *User {
	if i < 0 || i >= len(u.Friends) {
		return nil
	}
	return u.Friends[i]
}

// Sample returns a populated user graph.
func Sample() *User {
	bob := &User{Name: "Bob", Age: 40, Address: &Address{City: "Berlin", Zip: 10115}}
	return &User{
		Name:    "Ada",
		Age:     36,
		Address: &Address{City: "London", Zip: 1, Lines: []string{"12 Baker St", "Marylebone"}},
		Tags:    []string{"math", "engines"},
		Attrs:   map[string]any{"lang": "en", "level": 3},
		Friends: []*User{bob},
		Scores:  [3]int{7, 8, 9},
		nick:    "countess",
	}
}

type Point struct{ X, Y int }

func NewPoint(x, y int) *Point { return &Point{X: x, Y: y} }

func ParsePoint(s string) (*Point, error) {
	var p Point
	if _, err := fmt.Sscanf(s, "%d:%d", &p.X, &p.Y); err != nil {
		return nil, err
	}
	return &p, nil
}

// Symbols is a map-backed builder.Symbols.
type Symbols struct {
	Statics map[string]any
	Ctors   map[string][]reflect.Value
}

var _ builder.Symbols = (*Symbols)(nil)

func (s *Symbols) Static(name string) (any, bool) {
	v, ok := s.Statics[name]
	return v, ok
}

func (s *Symbols) Constructors(name string) []reflect.Value { return s.Ctors[name] }

// DefaultSymbols registers Point constructors and a Limits static.
func DefaultSymbols() *Symbols {
	return &Symbols{
		Statics: map[string]any{"Limits": map[string]int{"max": 10}},
		Ctors: map[string][]reflect.Value{
			"Point": {reflect.ValueOf(NewPoint), reflect.ValueOf(ParsePoint)},
		},
	}
}

// Recorder is a listener that records every notification.
type Recorder struct {
	mu     sync.Mutex
	Events []string
}

var _ accessor.Listener = (*Recorder)(nil)

func (r *Recorder) OnGet(name string, target any, _ *scope.Scope) {
	r.mu.Lock()
	r.Events = append(r.Events, fmt.Sprintf("get %s on %T", name, target))
	r.mu.Unlock()
}

func (r *Recorder) OnSet(name string, target any, _ *scope.Scope, value any) {
	r.mu.Lock()
	r.Events = append(r.Events, fmt.Sprintf("set %s on %T = %v", name, target, value))
	r.mu.Unlock()
}

// Bag is a value served only through a property handler.
type Bag struct {
	Values map[string]any
}

// BagHandler serves Bag properties by name.
type BagHandler struct{}

func (BagHandler) GetProperty(name string, target any, _ *scope.Scope) (any, error) {
	v, ok := target.(*Bag).Values[name]
	if !ok {
		return nil, accessor.ErrNotFound
	}
	return v, nil
}

func (BagHandler) SetProperty(name string, target any, _ *scope.Scope, value any) (any, error) {
	target.(*Bag).Values[name] = value
	return value, nil
}

// BindingBagHandler additionally binds properties once per type.
type BindingBagHandler struct {
	BagHandler
	Binds int
}

func (h *BindingBagHandler) BindProperty(t reflect.Type, name string) (accessor.PropertyBinding, bool) {
	h.Binds++
	return bagBinding{name: name}, true
}

type bagBinding struct{ name string }

func (b bagBinding) Get(target any) (any, error) {
	return BagHandler{}.GetProperty(b.name, target, nil)
}

func (b bagBinding) Set(target any, value any) (any, error) {
	return BagHandler{}.SetProperty(b.name, target, nil, value)
}

func (b bagBinding) Type() reflect.Type { return nil }

// OpaqueHandler is a BagHandler that opts out of specialization.
type OpaqueHandler struct{ BagHandler }

func (OpaqueHandler) NoSpecialization() {}

// Handlers is a map-backed accessor.HandlerLookup.
type Handlers map[reflect.Type]accessor.PropertyHandler

func (h Handlers) Lookup(t reflect.Type) accessor.PropertyHandler { return h[t] }

// Chains builds chains from path text for tests.
type Chains struct {
	Builder *builder.Builder
	// Nested wraps a nested path chain used as an argument or value.
	Nested func(head *accessor.Node) accessor.Accessor
}

// Build parses text and builds its chain against declared input type in.
func (c *Chains) Build(tb testing.TB, text string, in reflect.Type, s *scope.Scope) *accessor.Node {
	tb.Helper()
	head, err := c.TryBuild(text, in, s)
	if err != nil {
		tb.Fatalf("build %q: %v", text, err)
	}
	return head
}

// TryBuild is Build returning the error.
func (c *Chains) TryBuild(text string, in reflect.Type, s *scope.Scope) (*accessor.Node, error) {
	sc := &statement.Compiler{}
	sc.Build = func(text string, _ int) (accessor.Accessor, error) {
		segs, err := pathparse.Parse(text, sc.Compile)
		if err != nil {
			return nil, err
		}
		nested := *c.Builder
		nested.Listeners = nil
		head, err := nested.Build(segs, nil, s)
		if err != nil {
			return nil, err
		}
		return c.Nested(head), nil
	}
	segs, err := pathparse.Parse(text, sc.Compile)
	if err != nil {
		return nil, err
	}
	return c.Builder.Build(segs, in, s)
}
