package walk

import (
	"errors"
	"fmt"

	"github.com/jward/caret/internal/tree"
)

var (
	ErrNoElementAtOffset   = errors.New("no element at offset")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrCancelled           = errors.New("cancelled by user")
	ErrTraversalFault      = errors.New("unexpected traversal fault")
)

// Status is the outcome of a walk.
type Status int

const (
	OK Status = iota
	Cancelled
	NoElement
	Unsupported
	Failed
)

var statusNames = [...]string{
	OK:          "ok",
	Cancelled:   "cancelled",
	NoElement:   "no_element",
	Unsupported: "unsupported",
	Failed:      "failed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Counts maps node kinds to the number of visited nodes of that kind.
type Counts map[tree.Kind]int

// Facts describes the caret position within a code tree.
type Facts struct {
	Element string
	Method  string
	Class   string
	Locals  []string
}

// Result is the value a walk produces. Counts and Facts are partial when
// Cancelled is set.
type Result struct {
	Status    Status
	Counts    Counts
	Cancelled bool
	Visited   int
	Facts     *Facts
	Fault     string
}

// Err maps a non-OK status to its sentinel error.
func (r Result) Err() error {
	switch r.Status {
	case OK:
		return nil
	case Cancelled:
		return ErrCancelled
	case NoElement:
		return ErrNoElementAtOffset
	case Unsupported:
		return ErrUnsupportedLanguage
	case Failed:
		if r.Fault != "" {
			return fmt.Errorf("%w: %s", ErrTraversalFault, r.Fault)
		}
		return ErrTraversalFault
	default:
		return fmt.Errorf("walk: unknown status %d", int(r.Status))
	}
}
