package caret

import (
	"fmt"
	"strings"

	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

// Notices shown in place of facts.
const (
	NoElementMessage   = "No element at caret!"
	UnsupportedMessage = "No supported languages found"
	CancelledMessage   = "Task was cancelled"
)

// Report is the outcome of one Inspect, identified by its snapshot.
type Report struct {
	Path     string
	Language string
	Variant  walk.Variant
	Offset   int
	Result   walk.Result
}

func newReport(snap *Snapshot, res walk.Result) Report {
	return Report{
		Path:     snap.Path,
		Language: snap.Language,
		Variant:  snap.Variant,
		Offset:   snap.Offset,
		Result:   res,
	}
}

// Err returns the sentinel for a non-OK result, or nil.
func (r Report) Err() error {
	return r.Result.Err()
}

// Message renders the report as the single plain-text message shown to the
// user.
func (r Report) Message() string {
	res := r.Result
	switch res.Status {
	case walk.Cancelled:
		return CancelledMessage
	case walk.NoElement:
		return NoElementMessage
	case walk.Unsupported:
		return UnsupportedMessage
	case walk.Failed:
		return fmt.Sprintf("Inspection failed: %s", res.Fault)
	}

	var b strings.Builder
	if f := res.Facts; f != nil {
		fmt.Fprintf(&b, "Element at caret: %s\n", f.Element)
		if f.Method != "" {
			fmt.Fprintf(&b, "Containing method: %s\n", f.Method)
		}
		if f.Class != "" {
			fmt.Fprintf(&b, "Containing class: %s\n", f.Class)
		}
		if len(f.Locals) > 0 {
			b.WriteString("Local variables:\n")
			for _, name := range f.Locals {
				fmt.Fprintf(&b, "- %s\n", name)
			}
		}
	}
	fmt.Fprintf(&b, "language: %s\n", r.Language)
	for _, kind := range tree.Kinds() {
		if n, ok := res.Counts[kind]; ok {
			fmt.Fprintf(&b, "count.%s: %d\n", kind, n)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
