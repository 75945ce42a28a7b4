// Package builder turns parsed path segments into accessor chains.
package builder

import (
	"reflect"

	"github.com/hanpama/pathway/internal/accessor"
	"github.com/hanpama/pathway/internal/member"
	"github.com/hanpama/pathway/internal/scope"
)

// Symbols resolves names that are not members of the navigated value.
type Symbols interface {
	// Static returns the value registered under name.
	Static(name string) (any, bool)
	// Constructors returns the constructor functions registered under name,
	// in registration order.
	Constructors(name string) []reflect.Value
}

// Builder produces chains. The zero value builds chains without statics,
// constructors or listeners.
type Builder struct {
	Symbols   Symbols
	Listeners []accessor.Listener
	Env       *accessor.Env
}

// Build links segs into a chain navigating from a value of declared type in
// (nil when unknown). Types are inferred from declarations only; nothing is
// evaluated.
func (b *Builder) Build(segs []accessor.Segment, in reflect.Type, s *scope.Scope) (*accessor.Node, error) {
	nodes, err := b.nodes(segs, member.Static(in), s, true)
	if err != nil {
		return nil, err
	}
	return accessor.Chain(nodes...), nil
}

func (b *Builder) nodes(segs []accessor.Segment, t reflect.Type, s *scope.Scope, top bool) ([]*accessor.Node, error) {
	var out []*accessor.Node
	for i, seg := range segs {
		root := top && i == 0
		var n *accessor.Node
		switch seg.Kind {
		case accessor.KindProperty:
			if root {
				if n = b.static(seg, t, s); n != nil {
					break
				}
			}
			if len(b.Listeners) > 0 {
				out = append(out, &accessor.Node{
					Kind:      accessor.KindNotify,
					Name:      seg.Name,
					Listeners: b.Listeners,
					In:        t,
					Type:      t,
					Start:     seg.Start,
					End:       seg.End,
				})
			}
			n = &accessor.Node{Kind: accessor.KindProperty, Name: seg.Name, Type: b.propertyType(t, seg.Name, root, s)}

		case accessor.KindMethod:
			n = &accessor.Node{Kind: accessor.KindMethod, Name: seg.Name, Args: seg.Args}
			if !(root && s.IsResolvable(seg.Name)) {
				n.Type = commonOut(member.LookupMethods(t, seg.Name))
			}

		case accessor.KindIndex:
			n = &accessor.Node{Kind: accessor.KindIndex, Type: member.Static(member.IndexElem(t))}
			if c, ok := seg.Index.(accessor.Constant); ok {
				n.Const, n.HasConst = c.Constant(), true
			} else {
				n.Index = seg.Index
			}

		case accessor.KindWith:
			n = &accessor.Node{Kind: accessor.KindWith, Type: t}
			for _, w := range seg.With {
				sub, err := b.nodes(w.Path, t, s, false)
				if err != nil {
					return nil, err
				}
				if len(sub) == 0 {
					return nil, &accessor.PropertyAccessError{Op: "with", Err: accessor.ErrNotAssignable}
				}
				n.With = append(n.With, accessor.Assignment{Path: accessor.Chain(sub...), Value: w.Value})
			}

		case accessor.KindConstructor:
			var ctors []reflect.Value
			if b.Symbols != nil {
				ctors = b.Symbols.Constructors(seg.Name)
			}
			if len(ctors) == 0 {
				return nil, &accessor.PropertyAccessError{Op: "constructor", Name: seg.Name, Err: accessor.ErrNotFound}
			}
			cands := make([]*member.Callable, len(ctors))
			for i, fn := range ctors {
				cands[i] = member.FuncCallable(seg.Name, fn)
			}
			n = &accessor.Node{Kind: accessor.KindConstructor, Name: seg.Name, Args: seg.Args, Ctors: ctors, Type: commonOut(cands)}

		default:
			return nil, &accessor.CompilationNotSupportedError{Node: seg.Kind, Name: seg.Name, Reason: "unknown segment kind"}
		}

		n.In = t
		n.Root = root
		n.Start, n.End = seg.Start, seg.End
		out = append(out, n)
		t = n.Type

		if seg.NullSafe {
			out = append(out, &accessor.Node{Kind: accessor.KindNullSafe, In: t, Type: t, Start: seg.Start, End: seg.End})
		}
	}
	return out, nil
}

// static returns a static node for a root name that is neither a variable
// nor a member of the declared input type.
func (b *Builder) static(seg accessor.Segment, t reflect.Type, s *scope.Scope) *accessor.Node {
	if b.Symbols == nil || s.IsResolvable(seg.Name) {
		return nil
	}
	if b.hasProperty(t, seg.Name) {
		return nil
	}
	v, ok := b.Symbols.Static(seg.Name)
	if !ok {
		return nil
	}
	return &accessor.Node{Kind: accessor.KindStatic, Name: seg.Name, Static: v, Type: member.Static(reflect.TypeOf(v))}
}

func (b *Builder) hasProperty(t reflect.Type, name string) bool {
	if t == nil {
		return false
	}
	if b.Env.Handler(t) != nil {
		return true
	}
	_, ok := member.LookupProperty(t, name)
	return ok
}

func (b *Builder) propertyType(t reflect.Type, name string, root bool, s *scope.Scope) reflect.Type {
	if root {
		if r, ok := s.Lookup(name); ok {
			return member.Static(r.Type())
		}
	}
	if t == nil {
		return nil
	}
	if h := b.Env.Handler(t); h != nil {
		if binder, ok := h.(accessor.PropertyBinder); ok {
			if pb, ok := binder.BindProperty(t, name); ok {
				return member.Static(pb.Type())
			}
		}
		return nil
	}
	if p, ok := member.LookupProperty(t, name); ok {
		return member.Static(p.Type)
	}
	return nil
}

// commonOut is the result type shared by every candidate, or nil.
func commonOut(cands []*member.Callable) reflect.Type {
	var out reflect.Type
	for i, c := range cands {
		if i == 0 {
			out = c.Out()
			continue
		}
		if c.Out() != out {
			return nil
		}
	}
	return member.Static(out)
}
