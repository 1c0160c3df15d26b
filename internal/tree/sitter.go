package tree

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// maxNameLen caps names lifted from source text.
const maxNameLen = 80

// Rule maps a tree-sitter node type to a Kind. Parent, when set, restricts
// the rule to nodes whose named parent has that type. The node's name is the
// text of the field NameField, or else of the first named child of type
// NameChild; with neither set the node is unnamed.
type Rule struct {
	Type      string
	Parent    string
	Kind      Kind
	NameField string
	NameChild string
}

// Rules is an ordered rule list. The first matching rule wins.
type Rules []Rule

// Match returns the first rule for a node of type typ under a parent of type
// parent.
func (rs Rules) Match(typ, parent string) (Rule, bool) {
	for _, r := range rs {
		if r.Type != typ {
			continue
		}
		if r.Parent != "" && r.Parent != parent {
			continue
		}
		return r, true
	}
	return Rule{}, false
}

// index groups rules by node type, preserving order within each type.
func (rs Rules) index() map[string]Rules {
	idx := make(map[string]Rules, len(rs))
	for _, r := range rs {
		idx[r.Type] = append(idx[r.Type], r)
	}
	return idx
}

// Mark classifies one specific grammar node, found by its type and byte
// range. Marks come from per-file scripts and take precedence over rules.
// An empty Name falls back to the node's own text.
type Mark struct {
	Type  string
	Start int
	End   int
	Kind  Kind
	Name  string
}

type markKey struct {
	typ        string
	start, end int
}

// lifter carries the lookup tables of one FromSitter call.
type lifter struct {
	src   []byte
	rules map[string]Rules
	marks map[markKey]Mark
}

// FromSitter lifts a tree-sitter tree into a Node tree. Every named
// tree-sitter node becomes one Node; a node is classified by its mark if it
// has one, else by the first matching rule, else it is Other. The result
// holds no references to tree-sitter memory, so the sitter tree may be
// closed afterwards.
func FromSitter(root *sitter.Node, src []byte, rules Rules, marks ...Mark) *Node {
	if root == nil {
		return nil
	}
	l := &lifter{src: src, rules: rules.index(), marks: make(map[markKey]Mark, len(marks))}
	for _, m := range marks {
		l.marks[markKey{m.Type, m.Start, m.End}] = m
	}
	return l.convert(root, "")
}

func (l *lifter) convert(sn *sitter.Node, parentType string) *Node {
	start := sn.StartPoint()
	n := &Node{
		Type:  sn.Type(),
		Start: int(sn.StartByte()),
		End:   int(sn.EndByte()),
		Line:  int(start.Row),
		Col:   int(start.Column),
	}
	if m, ok := l.marks[markKey{n.Type, n.Start, n.End}]; ok {
		n.Kind = m.Kind
		n.Name = m.Name
		if n.Name == "" {
			n.Name = sn.Content(l.src)
		}
		n.Name = cleanName(n.Name)
	} else if r, ok := l.rules[n.Type].Match(n.Type, parentType); ok {
		n.Kind = r.Kind
		n.Name = r.name(sn, l.src)
	}

	count := int(sn.NamedChildCount())
	for i := 0; i < count; i++ {
		child := sn.NamedChild(i)
		if child == nil {
			continue
		}
		n.AddChild(l.convert(child, n.Type))
	}
	return n
}

func (r Rule) name(sn *sitter.Node, src []byte) string {
	var target *sitter.Node
	switch {
	case r.NameField != "":
		target = sn.ChildByFieldName(r.NameField)
	case r.NameChild != "":
		for i := 0; i < int(sn.NamedChildCount()); i++ {
			if c := sn.NamedChild(i); c != nil && c.Type() == r.NameChild {
				target = c
				break
			}
		}
	}
	if target == nil {
		return ""
	}
	return cleanName(target.Content(src))
}

// cleanName keeps the first line of text, trimmed and capped.
func cleanName(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > maxNameLen {
		s = s[:maxNameLen] + "..."
	}
	return s
}
