package caret

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jward/caret/internal/runtime"
	"github.com/jward/caret/internal/task"
	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
	"github.com/jward/caret/scripts"
)

// Engine captures snapshots and schedules walks over them. Terminal
// callbacks run on the engine's Loop; the caller must drive Loop().Run.
type Engine struct {
	runtime    *runtime.Runtime
	runner     *task.Runner
	loop       *task.Loop
	scriptsDir string
	scriptsFS  fs.FS
	languages  map[string]bool // nil means all languages
	log        logrus.FieldLogger
	walkOpts   []walk.Option
	workers    int

	mu    sync.Mutex
	rules map[string]tree.Rules
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will walk. Files in
// other languages are reported as unsupported.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[runtime.NormalizeLanguage(lang)] = true
		}
	}
}

// WithScriptsFS loads classification scripts from fsys instead of the
// scriptsDir path on disk.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithLogger sets the logger shared by the engine, its runner and scripts.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithWalkOptions applies opts to every walk the engine schedules.
func WithWalkOptions(opts ...walk.Option) Option {
	return func(e *Engine) {
		e.walkOpts = append(e.walkOpts, opts...)
	}
}

// WithLoop delivers terminal callbacks to l instead of a loop owned by the
// engine.
func WithLoop(l *task.Loop) Option {
	return func(e *Engine) {
		e.loop = l
	}
}

// WithWorkers bounds the number of files CaptureAll parses at once. Zero
// means one per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// New creates an Engine. Scripts are loaded, in priority order, from the
// WithScriptsFS filesystem, from scriptsDir on disk, or from the embedded
// scripts when scriptsDir is empty.
func New(scriptsDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		scriptsDir: scriptsDir,
		log:        logrus.StandardLogger(),
		rules:      make(map[string]tree.Rules),
	}
	for _, opt := range opts {
		opt(e)
	}

	for lang := range e.languages {
		if _, ok := runtime.ParserForLanguage(lang); !ok {
			return nil, fmt.Errorf("caret: %w: %q", ErrUnsupportedLanguage, lang)
		}
	}

	if e.scriptsFS == nil && scriptsDir == "" {
		e.scriptsFS = scripts.FS
	}
	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.log)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = runtime.NewRuntime(scriptsDir, rtOpts...)

	if e.loop == nil {
		e.loop = task.NewLoop()
	}
	e.runner = task.NewRunner(e.loop, task.WithLogger(e.log))
	return e, nil
}

// Close stops the engine's loop. Callbacks already posted still run.
func (e *Engine) Close() error {
	e.loop.Stop()
	return nil
}

// Loop returns the loop terminal callbacks are delivered on.
func (e *Engine) Loop() *task.Loop {
	return e.loop
}

// Languages returns the language tags the engine walks, sorted.
func (e *Engine) Languages() []string {
	var langs []string
	for _, lang := range runtime.Languages() {
		if e.enabled(lang) {
			langs = append(langs, lang)
		}
	}
	return langs
}

func (e *Engine) enabled(lang string) bool {
	return e.languages == nil || e.languages[lang]
}

// Snapshot is everything a walk needs, captured before it is scheduled and
// never modified afterwards.
type Snapshot struct {
	Path     string
	Language string
	Variant  walk.Variant
	Offset   int
	Source   []byte
	Root     *tree.Node
}

// Capture reads (when src is nil), parses and classifies the file at path,
// detecting its language from the extension. A file in no supported
// language is not an error: the snapshot's Variant is walk.NoVariant and
// inspecting it reports the language as unsupported.
func (e *Engine) Capture(ctx context.Context, path string, src []byte, offset int) (*Snapshot, error) {
	lang, _ := runtime.LanguageForFile(path)
	return e.CaptureAs(ctx, path, lang, src, offset)
}

// CaptureAs is Capture with an explicit language tag.
func (e *Engine) CaptureAs(ctx context.Context, path, lang string, src []byte, offset int) (*Snapshot, error) {
	lang = runtime.NormalizeLanguage(lang)
	if src == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("caret: read file: %w", err)
		}
		src = data
	}

	snap := &Snapshot{
		Path:     path,
		Language: lang,
		Offset:   offset,
		Source:   src,
	}
	if !e.enabled(lang) {
		return snap, nil
	}
	snap.Variant = runtime.VariantForLanguage(lang)
	if snap.Variant == walk.NoVariant {
		return snap, nil
	}

	rules, err := e.rulesFor(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("caret: rules for %s: %w", lang, err)
	}
	marks, err := e.runtime.LoadMarks(ctx, lang, src)
	if err != nil {
		return nil, fmt.Errorf("caret: marks for %s: %w", path, err)
	}
	st, err := runtime.Parse(ctx, src, lang)
	if err != nil {
		return nil, fmt.Errorf("caret: parse %s: %w", path, err)
	}
	defer st.Close()

	snap.Root = tree.FromSitter(st.RootNode(), src, rules, marks...)
	e.log.WithFields(logrus.Fields{
		"path":     path,
		"language": lang,
		"nodes":    snap.Root.Size(),
		"marks":    len(marks),
	}).Debug("snapshot captured")
	return snap, nil
}

// rulesFor returns the classification rules for lang, running its script
// once per engine.
func (e *Engine) rulesFor(ctx context.Context, lang string) (tree.Rules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rules, ok := e.rules[lang]; ok {
		return rules, nil
	}
	rules, err := e.runtime.LoadRules(ctx, lang)
	if err != nil {
		return nil, err
	}
	e.rules[lang] = rules
	return rules, nil
}

// Inspect schedules the walk for snap and returns at once. Exactly one of
// onCancelled and onDone runs on the engine's loop. Either may be nil.
func (e *Engine) Inspect(ctx context.Context, snap *Snapshot, onCancelled func(), onDone func(Report), opts ...walk.Option) *task.Handle {
	wopts := slices.Concat(e.walkOpts, opts)
	work := func(tok *task.Token) walk.Result {
		return walk.Run(snap.Variant, snap.Root, snap.Offset, tok, wopts...)
	}
	done := func(res walk.Result) {
		if onDone != nil {
			onDone(newReport(snap, res))
		}
	}
	return e.runner.Schedule(ctx, "Inspecting "+snap.Path, work, onCancelled, done)
}
