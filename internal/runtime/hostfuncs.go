package runtime

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/sirupsen/logrus"

	"github.com/jward/caret/internal/tree"
)

// sourceStore remembers the source bytes and grammar behind every tree a
// script parsed. smacker/go-tree-sitter doesn't expose Node.Tree(), so
// entries are keyed by root node pointer and found again by walking up
// Parent(). Each evaluation gets its own store; release closes the trees
// once the script's values are no longer needed.
type sourceStore struct {
	mu      sync.RWMutex
	entries map[uintptr]sourceEntry
}

type sourceEntry struct {
	tree *sitter.Tree
	src  []byte
	lang *sitter.Language
}

func newSourceStore() *sourceStore {
	return &sourceStore{entries: make(map[uintptr]sourceEntry)}
}

func (s *sourceStore) store(t *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(t.RootNode()))
	s.mu.Lock()
	s.entries[key] = sourceEntry{tree: t, src: src, lang: lang}
	s.mu.Unlock()
}

// release closes every stored tree. Nodes from those trees must not be
// used afterwards.
func (s *sourceStore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		e.tree.Close()
		delete(s.entries, key)
	}
}

func rootOf(node *sitter.Node) *sitter.Node {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return node
}

func (s *sourceStore) lookup(node *sitter.Node) ([]byte, *sitter.Language, bool) {
	key := uintptr(unsafe.Pointer(rootOf(node)))
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e.src, e.lang, ok
}

func stringArg(fn string, args []object.Object, i int, what string) (string, *object.Error) {
	s, ok := args[i].(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, args[i].Type())
	}
	return s.Value(), nil
}

func nodeArg(fn string, args []object.Object, i int) (*sitter.Node, *object.Error) {
	proxy, ok := args[i].(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, args[i].Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// makeParseSrcFn creates "parse_src", which parses a source string.
//
// parse_src(source, language) → *sitter.Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, errObj := stringArg("parse_src", args, 0, "source")
		if errObj != nil {
			return errObj
		}
		lang, errObj := stringArg("parse_src", args, 1, "language")
		if errObj != nil {
			return errObj
		}
		return parseSource(ctx, ss, []byte(src), lang)
	})
}

func parseSource(ctx context.Context, ss *sourceStore, src []byte, lang string) object.Object {
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return object.Errorf("parse: unsupported language %q", lang)
	}
	t, err := Parse(ctx, src, lang)
	if err != nil {
		return object.Errorf("parse: %v", err)
	}
	ss.store(t, src, grammar)

	proxy, err := object.NewProxy(t)
	if err != nil {
		return object.Errorf("parse: proxy error: %v", err)
	}
	return proxy
}

// makeNodeTextFn creates the "node_text" host function. Risor's proxy
// system cannot convert strings to []byte for node.Content([]byte).
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args, 0)
		if errObj != nil {
			return errObj
		}
		src, _, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(src))
	})
}

// makeQueryFn creates the "query" host function. Each match is a map from
// capture name to proxied Node.
//
// query(pattern, node) → []map[string]Node
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", args, 0, "pattern")
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args, 1)
		if errObj != nil {
			return errObj
		}
		src, lang, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: no source found for node's tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)

			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// makeNodeChildFn creates "node_child", a ChildByFieldName wrapper that
// returns Risor nil instead of a proxied Go nil pointer.
//
// node_child(node, fieldName) → Node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args, 0)
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", args, 1, "field")
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: proxy error: %v", err)
		}
		return p
	})
}

// logObject provides log.Debug/Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log logrus.FieldLogger
}

func (l *logObject) Debug(msg string) { l.log.Debug(msg) }
func (l *logObject) Info(msg string)  { l.log.Info(msg) }
func (l *logObject) Warn(msg string)  { l.log.Warn(msg) }
func (l *logObject) Error(msg string) { l.log.Error(msg) }

// --- Rule decoding ---

// decodeRules converts the list a classification script evaluates to. Each
// entry is a map with keys "type" and "kind" and optionally "parent",
// "name_field" and "name_child".
func decodeRules(obj object.Object) (tree.Rules, error) {
	list, ok := obj.(*object.List)
	if !ok {
		if obj == nil {
			return nil, fmt.Errorf("expected rule list, got nothing")
		}
		return nil, fmt.Errorf("expected rule list, got %s", obj.Type())
	}

	items := list.Value()
	rules := make(tree.Rules, 0, len(items))
	for i, item := range items {
		m, err := extractMap(item)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		typ := getString(m, "type")
		if typ == "" {
			return nil, fmt.Errorf("rule %d: missing type", i)
		}
		kindName := getString(m, "kind")
		kind, ok := tree.ParseKind(kindName)
		if !ok {
			return nil, fmt.Errorf("rule %d (%s): unknown kind %q", i, typ, kindName)
		}
		rules = append(rules, tree.Rule{
			Type:      typ,
			Parent:    getString(m, "parent"),
			Kind:      kind,
			NameField: getString(m, "name_field"),
			NameChild: getString(m, "name_child"),
		})
	}
	return rules, nil
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

// decodeMarks converts the list a mark script evaluates to. Each entry is a
// map with a proxied grammar node under "node", a "kind" and optionally a
// "name". It must run before the script's trees are released.
func decodeMarks(obj object.Object) ([]tree.Mark, error) {
	list, ok := obj.(*object.List)
	if !ok {
		if obj == nil {
			return nil, fmt.Errorf("expected mark list, got nothing")
		}
		return nil, fmt.Errorf("expected mark list, got %s", obj.Type())
	}

	items := list.Value()
	marks := make([]tree.Mark, 0, len(items))
	for i, item := range items {
		m, err := extractMap(item)
		if err != nil {
			return nil, fmt.Errorf("mark %d: %w", i, err)
		}
		proxy, ok := m["node"].(*object.Proxy)
		if !ok {
			return nil, fmt.Errorf("mark %d: missing node", i)
		}
		node, ok := proxy.Interface().(*sitter.Node)
		if !ok || node == nil {
			return nil, fmt.Errorf("mark %d: node is %T, not a syntax node", i, proxy.Interface())
		}
		kindName := getString(m, "kind")
		kind, ok := tree.ParseKind(kindName)
		if !ok {
			return nil, fmt.Errorf("mark %d (%s): unknown kind %q", i, node.Type(), kindName)
		}
		marks = append(marks, tree.Mark{
			Type:  node.Type(),
			Start: int(node.StartByte()),
			End:   int(node.EndByte()),
			Kind:  kind,
			Name:  getString(m, "name"),
		})
	}
	return marks, nil
}
