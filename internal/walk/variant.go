package walk

import (
	"fmt"
	"strings"

	"github.com/jward/caret/internal/tree"
)

// Variant selects which walk runs over a tree.
type Variant int

const (
	// NoVariant marks a language with no walk; running it reports
	// Unsupported.
	NoVariant Variant = iota
	Document
	Code
)

var variantNames = [...]string{
	NoVariant: "unsupported",
	Document:  "document",
	Code:      "code",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant returns the Variant named s.
func ParseVariant(s string) (Variant, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range variantNames {
		if name == s {
			return Variant(v), true
		}
	}
	return NoVariant, false
}

type walkFunc func(root *tree.Node, offset int, tok Token, opts ...Option) Result

var variants = map[Variant]walkFunc{
	Document: func(root *tree.Node, _ int, tok Token, opts ...Option) Result {
		return Traverse(root, tok, opts...)
	},
	Code: Inspect,
}

// Run dispatches to the walk for v. Variants without a walk return an
// Unsupported result with no counters touched.
func Run(v Variant, root *tree.Node, offset int, tok Token, opts ...Option) Result {
	fn, ok := variants[v]
	if !ok {
		return Result{Status: Unsupported, Counts: Counts{}}
	}
	return fn(root, offset, tok, opts...)
}
