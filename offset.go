package caret

import (
	"bytes"
	"fmt"
)

// OffsetAt converts a 0-based line and byte column into an absolute byte
// offset in src. A column past the end of its line is an error.
func OffsetAt(src []byte, line, col int) (int, error) {
	if line < 0 || col < 0 {
		return 0, fmt.Errorf("caret: negative position %d:%d", line, col)
	}
	start := 0
	for i := 0; i < line; i++ {
		nl := bytes.IndexByte(src[start:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("caret: line %d past end of file", line)
		}
		start += nl + 1
	}
	end := len(src)
	if nl := bytes.IndexByte(src[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if start+col > end {
		return 0, fmt.Errorf("caret: column %d past end of line %d", col, line)
	}
	return start + col, nil
}
