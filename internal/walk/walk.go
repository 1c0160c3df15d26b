// Package walk implements cancellable depth-first traversal of a syntax tree.
//
// Every walk polls its Token at each step boundary, before a node is
// visited, including the root. A token that is set before the walk starts
// therefore yields a cancelled result with all counters at zero, and once the
// token is set no counter changes after the next check. The element lookup
// that precedes a code walk follows the same rule.
package walk

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jward/caret/internal/tree"
)

// Token is a poll-able cancellation signal.
type Token interface {
	Cancelled() bool
}

type never struct{}

func (never) Cancelled() bool { return false }

// Never is a Token that is never set.
var Never Token = never{}

// Progress receives a call after every visited node. Calls arrive on the
// walking goroutine.
type Progress interface {
	Visited(n *tree.Node, visited int)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(n *tree.Node, visited int)

func (f ProgressFunc) Visited(n *tree.Node, visited int) { f(n, visited) }

// Option configures a walk.
type Option func(*options)

type options struct {
	progress Progress
	delay    time.Duration
	log      logrus.FieldLogger
}

// WithProgress reports every visited node to p.
func WithProgress(p Progress) Option {
	return func(o *options) {
		o.progress = p
	}
}

// WithStepDelay pauses for d after each visit. Used to make cancellation
// observable on small inputs; zero disables it.
func WithStepDelay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
	}
}

// WithLogger logs every visit at debug level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// handler processes one visited node. inMethod reports whether n lies
// strictly inside the method whose locals are being collected.
type handler func(s *state, n *tree.Node, inMethod bool)

func count(s *state, n *tree.Node, _ bool) {
	s.counts[n.Kind]++
}

func countLocal(s *state, n *tree.Node, inMethod bool) {
	s.counts[n.Kind]++
	if inMethod {
		s.locals = append(s.locals, n.Name)
	}
}

var documentHandlers = map[tree.Kind]handler{
	tree.Header:    count,
	tree.Paragraph: count,
}

var codeHandlers = map[tree.Kind]handler{
	tree.Method:        count,
	tree.Class:         count,
	tree.LocalVariable: countLocal,
}

// state is the traversal state of one walk. It is owned by the walking
// goroutine and never shared.
type state struct {
	tok      Token
	opts     options
	handlers map[tree.Kind]handler

	counts    Counts
	visited   int
	cancelled bool

	method *tree.Node
	locals []string
}

func newState(tok Token, handlers map[tree.Kind]handler, opts []Option) *state {
	if tok == nil {
		tok = Never
	}
	s := &state{
		tok:      tok,
		handlers: handlers,
		counts:   make(Counts, len(handlers)),
	}
	for kind := range handlers {
		s.counts[kind] = 0
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// stopped polls the token. The answer latches once true.
func (s *state) stopped() bool {
	if s.cancelled {
		return true
	}
	if s.tok.Cancelled() {
		s.cancelled = true
	}
	return s.cancelled
}

// walk visits n and its subtree in pre-order. It returns false once the
// walk has been cancelled.
func (s *state) walk(n *tree.Node, inMethod bool) bool {
	if s.stopped() {
		return false
	}
	s.visit(n, inMethod)

	inside := inMethod || (s.method != nil && n == s.method)
	for _, c := range n.Children() {
		if !s.walk(c, inside) {
			return false
		}
	}
	return true
}

func (s *state) visit(n *tree.Node, inMethod bool) {
	s.visited++
	if h, ok := s.handlers[n.Kind]; ok {
		h(s, n, inMethod)
	}
	if s.opts.log != nil {
		s.opts.log.WithField("visited", s.visited).Debugf("visit %s", n)
	}
	if s.opts.progress != nil {
		s.opts.progress.Visited(n, s.visited)
	}
	if s.opts.delay > 0 {
		time.Sleep(s.opts.delay)
	}
}

// locate descends from root to the deepest node containing offset.
func (s *state) locate(root *tree.Node, offset int) *tree.Node {
	if s.stopped() || root == nil || !root.Contains(offset) {
		return nil
	}
	n := root
	for {
		next := childAt(n, offset)
		if next == nil {
			return n
		}
		if s.stopped() {
			return nil
		}
		n = next
	}
}

func childAt(n *tree.Node, offset int) *tree.Node {
	for _, c := range n.Children() {
		if c.Contains(offset) {
			return c
		}
	}
	return nil
}

func (s *state) result(facts *Facts) Result {
	r := Result{
		Status:    OK,
		Counts:    s.counts,
		Cancelled: s.cancelled,
		Visited:   s.visited,
		Facts:     facts,
	}
	if s.cancelled {
		r.Status = Cancelled
	}
	return r
}

// Traverse walks a document tree and counts Header and Paragraph nodes.
func Traverse(root *tree.Node, tok Token, opts ...Option) Result {
	s := newState(tok, documentHandlers, opts)
	if root != nil {
		s.walk(root, false)
	}
	return s.result(nil)
}

// Inspect walks a code tree, counting Method, Class and LocalVariable nodes,
// and resolves the facts for the element at offset: its enclosing method,
// that method's enclosing class, and the method's local variables in
// pre-order. An offset outside every node yields NoElement without walking.
func Inspect(root *tree.Node, offset int, tok Token, opts ...Option) Result {
	s := newState(tok, codeHandlers, opts)

	el := s.locate(root, offset)
	if el == nil {
		r := s.result(nil)
		if !r.Cancelled {
			r.Status = NoElement
		}
		return r
	}

	facts := &Facts{Element: el.String()}
	if m := el.Ancestor(tree.Method); m != nil {
		s.method = m
		facts.Method = m.Name
		if c := m.Ancestor(tree.Class); c != nil {
			facts.Class = c.Name
		}
	}

	s.walk(root, false)
	facts.Locals = s.locals
	return s.result(facts)
}
