package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jward/caret"
	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

func testdata(name string) string {
	return filepath.Join("..", "..", "testdata", name)
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	for _, f := range []string{"json", "text", "yaml"} {
		assert.NoError(t, validateFormat(f))
	}
	err := validateFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestValidateColor(t *testing.T) {
	t.Parallel()
	for _, m := range supportedColorModes {
		assert.NoError(t, validateColor(m))
	}
	assert.Error(t, validateColor("sometimes"))
}

func TestColorEnabled_ExplicitModes(t *testing.T) {
	t.Parallel()
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, colorEnabled(colorModeAlways, f))
	assert.False(t, colorEnabled(colorModeNever, f))
	assert.False(t, colorEnabled(colorModeAuto, f), "a regular file is not a terminal")
}

func TestToCLIReport(t *testing.T) {
	t.Parallel()
	r := caret.Report{
		Path:     "Foo.java",
		Language: "java",
		Variant:  walk.Code,
		Offset:   42,
		Result: walk.Result{
			Status:  walk.OK,
			Visited: 17,
			Counts:  walk.Counts{tree.Method: 2, tree.Class: 1, tree.LocalVariable: 3},
			Facts:   &walk.Facts{Element: "identifier", Method: "bar", Class: "Foo", Locals: []string{"x", "y", "z"}},
		},
	}

	got := toCLIReport(r)
	assert.Equal(t, "code", got.Variant)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, map[string]int{"method": 2, "class": 1, "local_variable": 3}, got.Counts)
	assert.Equal(t, "bar", got.Method)
	assert.Equal(t, []string{"x", "y", "z"}, got.Locals)
	assert.Empty(t, got.Error)
	assert.Equal(t, r.Message(), got.Message)
}

func TestToCLIReport_Unsupported(t *testing.T) {
	t.Parallel()
	got := toCLIReport(caret.Report{Path: "a.txt", Result: walk.Result{Status: walk.Unsupported, Counts: walk.Counts{}}})
	assert.Equal(t, "unsupported", got.Status)
	assert.Equal(t, "unsupported", got.Variant)
	assert.Equal(t, caret.UnsupportedMessage, got.Message)
	assert.Equal(t, caret.ErrUnsupportedLanguage.Error(), got.Error)
	assert.Empty(t, got.Counts)
}

func TestCancelledReport(t *testing.T) {
	t.Parallel()
	got := cancelledReport(&caret.Snapshot{Path: "notes.md", Language: "markdown", Variant: walk.Document})
	assert.True(t, got.Cancelled)
	assert.Equal(t, "cancelled", got.Status)
	assert.Equal(t, caret.CancelledMessage, got.Message)
}

func TestWriteResult_Formats(t *testing.T) {
	t.Parallel()
	result := CLIResult{
		Command: "inspect",
		Results: []CLIReport{{
			Path:     "notes.md",
			Language: "markdown",
			Variant:  "document",
			Status:   "ok",
			Counts:   map[string]int{"header": 2, "paragraph": 3},
			Message:  "language: markdown\ncount.header: 2\ncount.paragraph: 3",
		}},
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, "json", newStyles(&buf, false), result))
		var decoded struct {
			Command string      `json:"command"`
			Results []CLIReport `json:"results"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "inspect", decoded.Command)
		require.Len(t, decoded.Results, 1)
		assert.Equal(t, 3, decoded.Results[0].Counts["paragraph"])
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, "yaml", newStyles(&buf, false), result))
		var decoded map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "inspect", decoded["command"])
		assert.Contains(t, buf.String(), "header: 2")
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResult(&buf, "text", newStyles(&buf, false), result))
		out := buf.String()
		assert.Contains(t, out, "notes.md (markdown)")
		assert.Contains(t, out, "count.header: 2")
		assert.Contains(t, out, "count.paragraph: 3")
		assert.NotContains(t, out, "\x1b[")
	})
}

func TestWriteResultText_Notices(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := writeResultText(&buf, newStyles(&buf, false), CLIResult{Results: []CLIReport{
		{Path: "a.txt", Status: "unsupported", Message: caret.UnsupportedMessage},
		{Path: "b.md", Status: "cancelled", Message: caret.CancelledMessage},
	}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), caret.UnsupportedMessage)
	assert.Contains(t, buf.String(), caret.CancelledMessage)
	assert.NotContains(t, buf.String(), "count.")
}

func TestWriteResultText_Languages(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, writeResultText(&buf, newStyles(&buf, false), CLIResult{Results: listLanguages()}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 10)
	assert.Contains(t, buf.String(), ".markdown")
}

func TestListLanguages(t *testing.T) {
	t.Parallel()
	langs := listLanguages()
	require.Len(t, langs, 9)
	for _, l := range langs {
		assert.NotEmpty(t, l.Extensions, l.Name)
		if l.Name == "markdown" {
			assert.Equal(t, "document", l.Variant)
		} else {
			assert.Equal(t, "code", l.Variant, l.Name)
		}
	}
}

func TestInspectFiles(t *testing.T) {
	src, err := os.ReadFile(testdata("Foo.java"))
	require.NoError(t, err)
	offset := strings.Index(string(src), "x + y")

	reports, err := inspectFiles(context.Background(),
		[]string{testdata("Foo.java"), testdata("notes.md"), testdata("notes.txt")},
		inspectOptions{offset: offset, line: -1})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	java := reports[0]
	assert.Equal(t, "ok", java.Status)
	assert.Equal(t, "bar", java.Method)
	assert.Equal(t, "Foo", java.Class)
	assert.Equal(t, []string{"x", "y", "i", "z"}, java.Locals)

	md := reports[1]
	assert.Equal(t, 2, md.Counts["header"])
	assert.Equal(t, 3, md.Counts["paragraph"])

	txt := reports[2]
	assert.Equal(t, "unsupported", txt.Status)
	assert.Equal(t, caret.UnsupportedMessage, txt.Message)
}

func TestInspectFiles_LineAndColumn(t *testing.T) {
	// Line 9 is "            int z = x + y;"; column 20 is the x.
	reports, err := inspectFiles(context.Background(), []string{testdata("Foo.java")},
		inspectOptions{line: 9, col: 20})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "bar", reports[0].Method)
	assert.Equal(t, "identifier", reports[0].Element)
}

func TestInspectFiles_LanguageOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nBody.\n"), 0o644))

	reports, err := inspectFiles(context.Background(), []string{path},
		inspectOptions{language: "markdown", line: -1})
	require.NoError(t, err)
	assert.Equal(t, 1, reports[0].Counts["header"])
	assert.Equal(t, 1, reports[0].Counts["paragraph"])
}

func TestInspectFiles_CancelledBeforeCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths := []string{testdata("notes.md"), testdata("Foo.java")}
	reports, err := inspectFiles(ctx, paths, inspectOptions{line: -1})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for i, r := range reports {
		assert.Equal(t, paths[i], r.Path)
		assert.True(t, r.Cancelled)
		assert.Equal(t, "cancelled", r.Status)
		assert.Equal(t, caret.CancelledMessage, r.Message)
	}
}

func TestInterruptedReport(t *testing.T) {
	t.Parallel()
	got := interruptedReport("Foo.java")
	assert.Equal(t, "Foo.java", got.Path)
	assert.True(t, got.Cancelled)
	assert.Equal(t, caret.CancelledMessage, got.Message)
	assert.Equal(t, walk.ErrCancelled.Error(), got.Error)
}

func TestInspectFiles_Timeout(t *testing.T) {
	reports, err := inspectFiles(context.Background(), []string{testdata("notes.md")},
		inspectOptions{line: -1, delay: 50 * time.Millisecond, timeout: 20 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Cancelled)
	assert.Equal(t, caret.CancelledMessage, reports[0].Message)
}

func TestInspectFiles_MissingFile(t *testing.T) {
	_, err := inspectFiles(context.Background(), []string{filepath.Join(t.TempDir(), "gone.java")},
		inspectOptions{line: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.java")
}

func TestInspectFiles_BadLine(t *testing.T) {
	_, err := inspectFiles(context.Background(), []string{testdata("notes.md")},
		inspectOptions{line: 500})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "past end of file")
}

func TestSpinner_CountsVisits(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := newSpinner(&buf, "Inspecting")
	for i := range 5 {
		s.Visited(tree.New(tree.Other, ""), i+1)
	}
	s.finish()
	require.NotNil(t, s.bar)

	quiet := newSpinner(nil, "")
	quiet.Visited(nil, 1)
	quiet.finish()
}
