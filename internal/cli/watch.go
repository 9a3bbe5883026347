package cli

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/subsume/internal/engine"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*ReasonOptions
	Debounce time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{ReasonOptions: &ReasonOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch <ontology-glob>...",
		Short: "Reason again whenever an input changes",
		Long: `Reason over the inputs, then again each time a file matching one of
the patterns is written, created, renamed or removed.

Changes arriving within the debounce interval are handled by one run.
Every run starts from a fresh temporary store. With --format json each
run prints one JSON line. Stops on interrupt.

Example:
  subsume watch 'onto/**/*.yaml' --debounce 500ms`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "quiet period before reasoning again")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "verify watermarks and fixpoints, count matches")
	cmd.Flags().IntVar(&opts.DepthSlack, "depth-slack", 0, "extra restriction nesting allowed beyond the input")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, patterns []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	prog, err := opts.program()
	if err != nil {
		return reportError(formatter, errorCode(err), WrapExitError(ExitCommandError, "load rules", err))
	}

	pass := func(ctx context.Context) {
		ws, err := openWorkspace(ctx, "", patterns)
		if err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return
		}
		defer func() {
			if cerr := ws.Close(); cerr != nil {
				logger.Error("error closing store", "error", cerr)
			}
		}()
		r := engine.New(ws.store, prog, opts.engineOptions(logger, nil)...)
		report, err := reasonOnce(ctx, ws, r, false)
		if report == nil {
			if ctx.Err() == nil {
				_ = formatter.Error(errorCode(err), err.Error(), nil)
			}
			return
		}
		_ = formatter.Success(report)
	}

	w := &watcher{patterns: patterns, debounce: opts.Debounce, pass: pass, logger: logger}
	if err := w.run(ctx); err != nil {
		return reportError(formatter, ErrCodeGeneric, WrapExitError(ExitCommandError, "watch", err))
	}
	return nil
}

// watcher calls pass once, then again after every burst of changes to
// files matching its patterns.
type watcher struct {
	patterns []string
	debounce time.Duration
	pass     func(context.Context)
	logger   *slog.Logger
}

// run blocks until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, p := range w.patterns {
		if err := w.addWatches(fsw, p); err != nil {
			return err
		}
	}

	w.pass(ctx)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				w.watchNewDirectory(fsw, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("input changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			w.pass(ctx)
		}
	}
}

// addWatches watches the fixed directory prefix of pattern, and every
// directory below it when the rest of the pattern spans directories.
func (w *watcher) addWatches(fsw *fsnotify.Watcher, pattern string) error {
	base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	base = filepath.FromSlash(base)
	if !strings.Contains(rest, "/") {
		return fsw.Add(base)
	}
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != base && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// watchNewDirectory follows directories created under a recursive watch.
func (w *watcher) watchNewDirectory(fsw *fsnotify.Watcher, path string) {
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return
	}
	for _, p := range w.patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(p))
		if !strings.Contains(rest, "/") {
			continue
		}
		if rel, err := filepath.Rel(filepath.FromSlash(base), path); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if err := w.addWatches(fsw, filepath.Join(path, "*")); err != nil {
			w.logger.Debug("not watching new path", "path", path, "error", err)
		}
		return
	}
}

func (w *watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.ToSlash(filepath.Clean(event.Name))
	for _, p := range w.patterns {
		if ok, _ := doublestar.Match(filepath.ToSlash(filepath.Clean(p)), name); ok {
			return true
		}
	}
	return false
}
