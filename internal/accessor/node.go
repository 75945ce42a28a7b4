package accessor

import (
	"fmt"
	"reflect"
)

// Kind is the operation a Node performs.
type Kind uint8

const (
	KindProperty Kind = iota
	KindMethod
	KindIndex
	KindWith
	KindConstructor
	KindNullSafe
	KindStatic
	KindNotify
)

var kindNames = [...]string{
	KindProperty:    "property",
	KindMethod:      "method",
	KindIndex:       "index",
	KindWith:        "with",
	KindConstructor: "constructor",
	KindNullSafe:    "nullsafe",
	KindStatic:      "static",
	KindNotify:      "notify",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Assignment is one `path = value` entry of a with-block. Path is a sub-chain
// evaluated relative to the with-block's incoming value.
type Assignment struct {
	Path  *Node
	Value Statement
}

// Node is one path segment. Nodes are linked by Chain and must not be modified
// once a strategy has been created over them.
type Node struct {
	Kind Kind
	// Name is the property, method, constructor or static name.
	Name string
	// Args are the argument statements of a method or constructor.
	Args []Statement
	// Index is the computed index statement; nil when HasConst.
	Index    Statement
	Const    any
	HasConst bool
	// With holds the assignments of a with-block.
	With []Assignment
	// Ctors are the candidate constructor functions.
	Ctors []reflect.Value
	// Static is the value of a static reference.
	Static any
	// Listeners are fired by a notify node.
	Listeners []Listener
	// In is the declared type of the incoming value and Type the declared
	// result type; nil means dynamic.
	In   reflect.Type
	Type reflect.Type
	// Root marks the first segment of a chain, which consults the scope.
	Root bool
	// Start and End are the byte bounds of the segment in the path text.
	Start, End int

	next   *Node
	linked bool
}

// Next returns the following node, or nil for the terminal node.
func (n *Node) Next() *Node { return n.next }

// Chain links nodes in order and returns the head. Each node may be linked
// only once, which keeps chains acyclic and singly owned.
func Chain(nodes ...*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	for i, n := range nodes {
		if n == nil {
			panic("accessor: nil node in chain")
		}
		if n.linked {
			panic(fmt.Sprintf("accessor: node %s %q is already part of a chain", n.Kind, n.Name))
		}
		n.linked = true
		if i > 0 {
			nodes[i-1].next = n
		}
	}
	return nodes[0]
}

// Nodes returns the chain starting at head as a slice.
func Nodes(head *Node) []*Node {
	var out []*Node
	for n := head; n != nil; n = n.next {
		out = append(out, n)
	}
	return out
}

// SetTerminal returns the node that a Set writes through: the last node that
// is not a null-safe guard.
func SetTerminal(head *Node) *Node {
	var last *Node
	for n := head; n != nil; n = n.next {
		if n.Kind != KindNullSafe {
			last = n
		}
	}
	return last
}

// EgressType returns the declared result type of the chain.
func EgressType(head *Node) reflect.Type {
	if t := SetTerminal(head); t != nil {
		return t.Type
	}
	return nil
}

// Segment is one path segment as produced by a parser. Kind is one of
// KindProperty, KindMethod, KindIndex, KindWith or KindConstructor.
type Segment struct {
	Kind     Kind
	Name     string
	Args     []Statement
	Index    Statement
	With     []WithSegment
	NullSafe bool
	Start    int
	End      int
}

// WithSegment is one assignment of a with-block segment.
type WithSegment struct {
	Path  []Segment
	Value Statement
}
