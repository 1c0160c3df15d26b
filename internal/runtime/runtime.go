package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/sirupsen/logrus"

	"github.com/jward/caret/internal/tree"
)

// Runtime embeds a Risor VM and provides tree-sitter host functions to the
// classification scripts that tell the tree adapter which grammar nodes are
// headers, paragraphs, methods, classes and local variables, and to the mark
// scripts that pick out individual nodes of one file.
type Runtime struct {
	scriptsDir string
	fsys       fs.FS
	log        logrus.FieldLogger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger behind the scripts' log global.
func WithRuntimeLogger(l logrus.FieldLogger) RuntimeOption {
	return func(r *Runtime) {
		r.log = l
	}
}

// NewRuntime creates a Runtime that loads scripts from scriptsDir, unless an
// fs.FS is supplied with WithRuntimeFS.
func NewRuntime(scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		scriptsDir: scriptsDir,
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller. It returns the value of the
// script's last expression. Trees the script parsed are closed on return.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) (object.Object, error) {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return r.evalAndRelease(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) (object.Object, error) {
	return r.evalAndRelease(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) evalAndRelease(ctx context.Context, source, label string, extraGlobals map[string]any) (object.Object, error) {
	ss := newSourceStore()
	defer ss.release()
	return r.eval(ctx, ss, source, label, extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, ss *sourceStore, source, label string, extraGlobals map[string]any) (object.Object, error) {
	globals := r.buildGlobals(ss, label, extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly. Modules
	// compile against every global name, builtins included.
	if imp := r.buildImporter(risor.NewConfig(opts...).GlobalNames()); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globalNames []string) importer.Importer {
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// ClassifyScriptPath returns the path to a language's classification script.
func ClassifyScriptPath(language string) string {
	return filepath.Join("classify", NormalizeLanguage(language)+".risor")
}

// LoadRules runs the classification script for lang and decodes the rule
// list it evaluates to.
func (r *Runtime) LoadRules(ctx context.Context, lang string) (tree.Rules, error) {
	path := ClassifyScriptPath(lang)
	obj, err := r.RunScript(ctx, path, map[string]any{
		"language": NormalizeLanguage(lang),
	})
	if err != nil {
		return nil, err
	}
	rules, err := decodeRules(obj)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", path, err)
	}
	r.log.WithFields(logrus.Fields{"language": lang, "rules": len(rules)}).Debug("classification rules loaded")
	return rules, nil
}

// MarkScriptPath returns the path to a language's mark script.
func MarkScriptPath(language string) string {
	return filepath.Join("mark", NormalizeLanguage(language)+".risor")
}

// LoadMarks runs the mark script for lang over src and decodes the marks it
// evaluates to. A language without a mark script has no marks.
func (r *Runtime) LoadMarks(ctx context.Context, lang string, src []byte) ([]tree.Mark, error) {
	path := MarkScriptPath(lang)
	script, err := r.LoadScript(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ss := newSourceStore()
	defer ss.release()
	obj, err := r.eval(ctx, ss, script, path, map[string]any{
		"language": NormalizeLanguage(lang),
		"source":   string(src),
	})
	if err != nil {
		return nil, err
	}
	marks, err := decodeMarks(obj)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", path, err)
	}
	r.log.WithFields(logrus.Fields{"language": lang, "marks": len(marks)}).Debug("marks computed")
	return marks, nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(ss *sourceStore, label string, extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse_src":  makeParseSrcFn(ss),
		"node_text":  makeNodeTextFn(ss),
		"node_child": makeNodeChildFn(),
		"query":      makeQueryFn(ss),
		"log":        mustProxy(&logObject{log: r.log.WithField("script", label)}),
		"kinds":      kindNames(),
	}
	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

// kindNames lists the kind names a rule may use.
func kindNames() *object.List {
	kinds := tree.Kinds()
	names := make([]object.Object, len(kinds))
	for i, k := range kinds {
		names[i] = object.NewString(k.String())
	}
	return object.NewList(names)
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
