package runtime

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	markdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/jward/caret/internal/walk"
)

// extToLanguage maps file extensions to language tags.
var extToLanguage = map[string]string{
	".md":       "markdown",
	".markdown": "markdown",
	".java":     "java",
	".go":       "go",
	".py":       "python",
	".js":       "javascript",
	".jsx":      "javascript",
	".mjs":      "javascript",
	".ts":       "typescript",
	".tsx":      "typescript",
	".rs":       "rust",
	".rb":       "ruby",
	".php":      "php",
}

// langToVariant decides which walk runs for a language tag.
var langToVariant = map[string]walk.Variant{
	"markdown":   walk.Document,
	"java":       walk.Code,
	"go":         walk.Code,
	"python":     walk.Code,
	"javascript": walk.Code,
	"typescript": walk.Code,
	"rust":       walk.Code,
	"ruby":       walk.Code,
	"php":        walk.Code,
}

// langToGrammar maps language tags to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"markdown":   markdown.GetLanguage(),
			"java":       java.GetLanguage(),
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
			"php":        php.GetLanguage(),
		}
	})
}

// LanguageForFile returns the language tag for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// NormalizeLanguage lower-cases and trims a language tag.
func NormalizeLanguage(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// VariantForLanguage returns the walk variant for a language tag, matched
// case-insensitively. Unknown tags return walk.NoVariant.
func VariantForLanguage(lang string) walk.Variant {
	return langToVariant[NormalizeLanguage(lang)]
}

// ParserForLanguage returns the tree-sitter Language for a language tag.
// Returns (nil, false) if the language is not supported.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[NormalizeLanguage(lang)]
	return l, ok
}

// Languages returns every supported language tag, sorted.
func Languages() []string {
	langs := make([]string, 0, len(langToVariant))
	for lang := range langToVariant {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// Extensions returns the file extensions mapped to lang, sorted.
func Extensions(lang string) []string {
	lang = NormalizeLanguage(lang)
	var exts []string
	for ext, l := range extToLanguage {
		if l == lang {
			exts = append(exts, ext)
		}
	}
	slices.Sort(exts)
	return exts
}
