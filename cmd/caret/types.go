package main

import (
	"github.com/jward/caret"
	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

// CLIResult is the top-level envelope for every command.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIReport is a serializable inspection outcome.
type CLIReport struct {
	Path      string         `json:"path" yaml:"path"`
	Language  string         `json:"language,omitempty" yaml:"language,omitempty"`
	Variant   string         `json:"variant" yaml:"variant"`
	Offset    int            `json:"offset" yaml:"offset"`
	Status    string         `json:"status" yaml:"status"`
	Cancelled bool           `json:"cancelled" yaml:"cancelled"`
	Visited   int            `json:"visited" yaml:"visited"`
	Counts    map[string]int `json:"counts" yaml:"counts"`
	Element   string         `json:"element,omitempty" yaml:"element,omitempty"`
	Method    string         `json:"method,omitempty" yaml:"method,omitempty"`
	Class     string         `json:"class,omitempty" yaml:"class,omitempty"`
	Locals    []string       `json:"locals,omitempty" yaml:"locals,omitempty"`
	Message   string         `json:"message" yaml:"message"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLILanguage describes one supported language.
type CLILanguage struct {
	Name       string   `json:"name" yaml:"name"`
	Variant    string   `json:"variant" yaml:"variant"`
	Extensions []string `json:"extensions" yaml:"extensions"`
}

func toCLIReport(r caret.Report) CLIReport {
	res := r.Result
	out := CLIReport{
		Path:      r.Path,
		Language:  r.Language,
		Variant:   r.Variant.String(),
		Offset:    r.Offset,
		Status:    res.Status.String(),
		Cancelled: res.Cancelled,
		Visited:   res.Visited,
		Counts:    make(map[string]int, len(res.Counts)),
		Message:   r.Message(),
	}
	for kind, n := range res.Counts {
		out.Counts[kind.String()] = n
	}
	if f := res.Facts; f != nil {
		out.Element = f.Element
		out.Method = f.Method
		out.Class = f.Class
		out.Locals = f.Locals
	}
	if err := r.Err(); err != nil {
		out.Error = err.Error()
	}
	return out
}

// cancelledReport stands in for a report whose task was cancelled; the
// runner delivers no result in that case.
func cancelledReport(snap *caret.Snapshot) CLIReport {
	return CLIReport{
		Path:      snap.Path,
		Language:  snap.Language,
		Variant:   snap.Variant.String(),
		Offset:    snap.Offset,
		Status:    walk.Cancelled.String(),
		Cancelled: true,
		Counts:    map[string]int{},
		Message:   caret.CancelledMessage,
		Error:     walk.ErrCancelled.Error(),
	}
}

// interruptedReport is the report for a file whose capture was cut short
// by an interrupt, before any snapshot existed.
func interruptedReport(path string) CLIReport {
	return CLIReport{
		Path:      path,
		Status:    walk.Cancelled.String(),
		Cancelled: true,
		Counts:    map[string]int{},
		Message:   caret.CancelledMessage,
		Error:     walk.ErrCancelled.Error(),
	}
}

// countKinds lists the kinds whose counts are shown, in display order.
func countKinds(counts map[string]int) []string {
	var kinds []string
	for _, k := range tree.Kinds() {
		if _, ok := counts[k.String()]; ok {
			kinds = append(kinds, k.String())
		}
	}
	return kinds
}
