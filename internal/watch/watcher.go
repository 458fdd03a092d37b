// Package watch turns file system activity into reload requests: an fsnotify
// watcher with debouncing for immediate changes, and a cron driven rescan for
// anything the watcher missed.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultExcludeDirs are never descended into. Hidden directories are
// watched since tasks files live in .taskdeck and .vscode.
var DefaultExcludeDirs = []string{".git", "node_modules", "vendor", "target"}

// ChangeFunc receives the slash separated paths, relative to the root, that
// changed during one debounce window. Paths outside the root are absolute.
type ChangeFunc func(ctx context.Context, paths []string)

// Options configure a Watcher.
type Options struct {
	// Root is watched recursively.
	Root string
	// Files are extra absolute file paths watched outside Root.
	Files []string
	// Match filters relative paths under Root; nil accepts everything.
	Match func(rel string) bool
	// Delay is the debounce window.
	Delay time.Duration
	// ExcludeDirs overrides DefaultExcludeDirs when non-nil.
	ExcludeDirs []string
	OnChange    ChangeFunc
}

// Watcher watches a worktree for changes to tasks files.
type Watcher struct {
	opts     Options
	fsw      *fsnotify.Watcher
	excludes map[string]bool
	files    map[string]bool

	pendingMu sync.Mutex
	pending   map[string]struct{}
}

// New creates a watcher. Nothing is watched until Run is called.
func New(opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Delay <= 0 {
		opts.Delay = 300 * time.Millisecond
	}
	excludeDirs := opts.ExcludeDirs
	if excludeDirs == nil {
		excludeDirs = DefaultExcludeDirs
	}
	excludes := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excludes[d] = true
	}
	files := make(map[string]bool, len(opts.Files))
	for _, f := range opts.Files {
		files[filepath.Clean(f)] = true
	}
	return &Watcher{
		opts:     opts,
		fsw:      fsw,
		excludes: excludes,
		files:    files,
		pending:  make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is cancelled, then releases the fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if err := w.addWatchesRecursive(w.opts.Root); err != nil {
		return err
	}
	for f := range w.files {
		// The parent directory is watched so that the file may be created later.
		if err := w.fsw.Add(filepath.Dir(f)); err != nil {
			slog.Warn("watch: cannot watch file", "path", f, "err", err)
		}
	}

	slog.Info("watch: started", "root", w.opts.Root, "debounce", w.opts.Delay)

	ticker := time.NewTicker(w.opts.Delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch: stopped")
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: watcher error", "err", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excludes[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("watch: cannot watch directory", "path", path, "err", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if w.files[path] {
		w.enqueue(path)
		return
	}

	rel, err := filepath.Rel(w.opts.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.excluded(rel) {
				return
			}
			// Files created together with their directory raise no events of
			// their own, so the new tree is added and reported as a whole.
			_ = w.addWatchesRecursive(path)
			w.enqueueTree(path)
			return
		}
	}

	if w.excluded(rel) {
		return
	}
	if w.opts.Match != nil && !w.opts.Match(rel) {
		return
	}
	w.enqueue(rel)
}

func (w *Watcher) enqueueTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.opts.Match == nil || w.opts.Match(rel) {
			w.enqueue(rel)
		}
		return nil
	})
}

func (w *Watcher) excluded(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if w.excludes[part] {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(path string) {
	w.pendingMu.Lock()
	w.pending[path] = struct{}{}
	w.pendingMu.Unlock()
	slog.Debug("watch: change detected", "path", path)
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	slices.Sort(paths)
	if w.opts.OnChange != nil {
		w.opts.OnChange(ctx, paths)
	}
}

// Close releases the watcher without running it.
func (w *Watcher) Close() error { return w.fsw.Close() }
