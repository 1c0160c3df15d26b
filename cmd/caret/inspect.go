package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jward/caret"
	"github.com/jward/caret/internal/tree"
	"github.com/jward/caret/internal/walk"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>...",
	Short: "Walk a file's syntax tree and report facts at the caret",
	Long: `Parses each file, then walks its syntax tree on a background goroutine.
Markdown files report header and paragraph counts. Code files report the element
at the caret, its enclosing method and class, and the method's local variables.

Press Ctrl-C once to cancel the running walks; a second Ctrl-C exits at once.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	flags := inspectCmd.Flags()
	flags.Int("offset", 0, "caret byte offset")
	flags.Int("line", -1, "caret line (0-based); with --col, overrides --offset")
	flags.Int("col", 0, "caret byte column (0-based)")
	flags.String("language", "", "language tag, overriding detection by extension")
	flags.String("languages", "", "comma-separated language filter (e.g. java,markdown)")
	flags.String("scripts-dir", "", "load classification scripts from disk instead of embedded")
	flags.Duration("timeout", 0, "cancel walks still running after this long")
	flags.Duration("delay", 0, "pause after every visited node")
	flags.Bool("no-progress", false, "hide the progress spinner")
	_ = viper.BindPFlags(flags)
}

// inspectOptions is the resolved configuration of one inspect run.
type inspectOptions struct {
	offset     int
	line       int
	col        int
	language   string
	languages  []string
	scriptsDir string
	timeout    time.Duration
	delay      time.Duration
	debug      bool
	progress   io.Writer // nil hides the spinner
}

func inspectOptionsFromConfig() inspectOptions {
	opts := inspectOptions{
		offset:     viper.GetInt("offset"),
		line:       viper.GetInt("line"),
		col:        viper.GetInt("col"),
		language:   viper.GetString("language"),
		scriptsDir: viper.GetString("scripts-dir"),
		timeout:    viper.GetDuration("timeout"),
		delay:      viper.GetDuration("delay"),
		debug:      viper.GetBool("debug"),
	}
	if list := viper.GetString("languages"); list != "" {
		for _, lang := range strings.Split(list, ",") {
			opts.languages = append(opts.languages, strings.TrimSpace(lang))
		}
	}
	if !viper.GetBool("no-progress") {
		opts.progress = os.Stderr
	}
	return opts
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		// Restore default SIGINT handling so a second Ctrl-C kills the process.
		<-ctx.Done()
		stop()
	}()

	reports, err := inspectFiles(ctx, args, inspectOptionsFromConfig())
	if err != nil {
		return outputError("inspect", err)
	}
	if err := outputResult(CLIResult{Command: "inspect", Results: reports}); err != nil {
		return err
	}
	for _, r := range reports {
		if r.Cancelled {
			return errInterrupted
		}
	}
	return nil
}

// inspectFiles captures every path, schedules one walk per snapshot and runs
// the presentation loop until each walk has delivered its single outcome.
// Reports come back in path order.
func inspectFiles(ctx context.Context, paths []string, opts inspectOptions) ([]CLIReport, error) {
	log := logrus.StandardLogger()
	engineOpts := []caret.Option{caret.WithLogger(log)}
	if len(opts.languages) > 0 {
		engineOpts = append(engineOpts, caret.WithLanguages(opts.languages...))
	}
	if opts.delay > 0 {
		engineOpts = append(engineOpts, caret.WithWalkOptions(walk.WithStepDelay(opts.delay)))
	}
	if opts.debug {
		engineOpts = append(engineOpts, caret.WithWalkOptions(walk.WithLogger(log)))
	}

	engine, err := caret.New(opts.scriptsDir, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	snaps, err := capture(ctx, engine, paths, opts)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted while capturing: nothing was walked, so every
			// file reports the cancellation notice.
			log.WithError(err).Debug("capture interrupted")
			reports := make([]CLIReport, len(paths))
			for i, p := range paths {
				reports[i] = interruptedReport(p)
			}
			return reports, nil
		}
		return nil, err
	}
	if len(snaps) == 0 {
		return []CLIReport{}, nil
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	spin := newSpinner(opts.progress, fmt.Sprintf("Inspecting %d file(s)", len(snaps)))
	defer spin.finish()

	loop := engine.Loop()
	reports := make([]CLIReport, len(snaps))
	pending := len(snaps)
	settle := func() {
		pending--
		if pending == 0 {
			loop.Stop()
		}
	}

	for i, snap := range snaps {
		onCancelled := func() {
			log.WithField("path", snap.Path).Warn(caret.CancelledMessage)
			reports[i] = cancelledReport(snap)
			settle()
		}
		onDone := func(r caret.Report) {
			reports[i] = toCLIReport(r)
			settle()
		}
		engine.Inspect(ctx, snap, onCancelled, onDone, walk.WithProgress(spin))
	}

	// The loop runs until every task has settled; cancellation reaches the
	// tasks through ctx, not through the loop.
	if err := loop.Run(context.Background()); err != nil {
		return nil, err
	}
	return reports, nil
}

// capture builds the snapshots on the calling goroutine, before any walk is
// scheduled.
func capture(ctx context.Context, engine *caret.Engine, paths []string, opts inspectOptions) ([]*caret.Snapshot, error) {
	var snaps []*caret.Snapshot
	if opts.language != "" {
		for _, p := range paths {
			snap, err := engine.CaptureAs(ctx, p, opts.language, nil, opts.offset)
			if err != nil {
				return nil, err
			}
			snaps = append(snaps, snap)
		}
	} else {
		var err error
		snaps, err = engine.CaptureAll(ctx, paths, opts.offset)
		if err != nil {
			return nil, err
		}
	}

	if opts.line >= 0 {
		for _, snap := range snaps {
			offset, err := caret.OffsetAt(snap.Source, opts.line, opts.col)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", snap.Path, err)
			}
			snap.Offset = offset
		}
	}
	return snaps, nil
}

// spinner shows an indeterminate progress bar fed by walk visits.
type spinner struct {
	bar *progressbar.ProgressBar
}

func newSpinner(w io.Writer, description string) *spinner {
	if w == nil {
		return &spinner{}
	}
	return &spinner{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Visited implements walk.Progress.
func (s *spinner) Visited(*tree.Node, int) {
	if s.bar == nil {
		return
	}
	if err := s.bar.Add(1); err != nil {
		logrus.Debugf("failed to advance progress: %v", err)
	}
}

func (s *spinner) finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}
