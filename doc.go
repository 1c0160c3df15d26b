// Package caret reports structural facts about a source file at a caret
// position. It parses the file with tree-sitter, lifts the syntax tree into
// a small kind-tagged model, and walks that model on a background goroutine
// that can be cancelled at every node.
//
// # Flow
//
// Work happens in two steps:
//
//  1. Capture: on the calling goroutine, detect the language, parse the
//     source, classify grammar nodes with the language's Risor script, and
//     freeze the result together with the caret offset in a [Snapshot].
//
//  2. Inspect: schedule the walk for the snapshot's variant on its own
//     goroutine. When it ends, exactly one callback runs on the engine's
//     [task.Loop]: onCancelled if the walk observed cancellation, onDone
//     with a [Report] otherwise.
//
// Markdown files get the document walk, which counts headers and
// paragraphs. Code files get the code walk, which finds the element at the
// caret, its enclosing method and class, and the method's local variables.
//
// # Usage
//
//	e, err := caret.New("")
//	if err != nil { ... }
//	defer e.Close()
//
//	snap, err := e.Capture(ctx, "Foo.java", nil, offset)
//	if err != nil { ... }
//
//	h := e.Inspect(ctx, snap,
//		func() { fmt.Println(caret.CancelledMessage) },
//		func(r caret.Report) { fmt.Println(r.Message()); e.Loop().Stop() })
//	_ = e.Loop().Run(ctx)
//	_ = h
//
// # Scripts
//
// Classification rules live in scripts/classify/{language}.risor and are
// embedded by default. Each script evaluates to a list of rules mapping a
// grammar node type to a kind; see [tree.Rule].
package caret
