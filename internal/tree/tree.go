// Package tree defines the syntax model walked by caret: typed nodes with a
// non-owning parent pointer and ordered, owned children.
package tree

import (
	"strconv"
	"strings"
)

// Kind classifies a syntax node.
type Kind int

const (
	Other Kind = iota
	Header
	Paragraph
	Method
	Class
	LocalVariable
)

var kindNames = [...]string{
	Other:         "other",
	Header:        "header",
	Paragraph:     "paragraph",
	Method:        "method",
	Class:         "class",
	LocalVariable: "local_variable",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s (case-insensitive).
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return Other, false
}

// Kinds returns every Kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

// MarshalText lets Kind serve as a JSON/YAML map key.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Node is one node of a syntax tree. Start and End are byte offsets into the
// source, End exclusive. Line and Col are 0-based.
type Node struct {
	Kind  Kind
	Name  string
	Type  string
	Start int
	End   int
	Line  int
	Col   int

	parent   *Node
	children []*Node
}

// New returns a detached node of the given kind.
func New(kind Kind, name string) *Node {
	return &Node{Kind: kind, Name: name}
}

// WithRange sets the node's byte range and returns the node.
func (n *Node) WithRange(start, end int) *Node {
	n.Start, n.End = start, end
	return n
}

// AddChild appends children in order and makes n their parent. It returns n
// so trees can be written as nested literals.
func (n *Node) AddChild(children ...*Node) *Node {
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// Parent returns the enclosing node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in source order. The slice must not
// be modified.
func (n *Node) Children() []*Node { return n.children }

// Contains reports whether offset falls inside [Start, End).
func (n *Node) Contains(offset int) bool {
	return offset >= n.Start && offset < n.End
}

// Ancestor returns the nearest strict ancestor of the given kind, or nil.
func (n *Node) Ancestor(kind Kind) *Node {
	for p := n.parent; p != nil; p = p.parent {
		if p.Kind == kind {
			return p
		}
	}
	return nil
}

// Size returns the number of nodes in the subtree rooted at n.
func (n *Node) Size() int {
	total := 1
	for _, c := range n.children {
		total += c.Size()
	}
	return total
}

// String describes the node by grammar type (or kind when built by hand)
// and name, e.g. `method_declaration "bar"`.
func (n *Node) String() string {
	label := n.Type
	if label == "" {
		label = n.Kind.String()
	}
	if n.Name != "" {
		return label + " " + strconv.Quote(n.Name)
	}
	return label
}
