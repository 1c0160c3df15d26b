package caret

import (
	"github.com/jward/caret/internal/task"
	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

// Public aliases for the internal types that appear in the Engine API.

type Node = tree.Node
type Kind = tree.Kind
type Result = walk.Result
type Status = walk.Status
type Variant = walk.Variant
type Handle = task.Handle
type Loop = task.Loop
type Token = task.Token

var (
	ErrNoElementAtOffset   = walk.ErrNoElementAtOffset
	ErrUnsupportedLanguage = walk.ErrUnsupportedLanguage
	ErrCancelled           = walk.ErrCancelled
	ErrTraversalFault      = walk.ErrTraversalFault
)
