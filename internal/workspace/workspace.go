// Package workspace keeps the file backed task sources of one worktree in
// sync with the disk: it discovers tasks files, registers a source for each
// and routes change notifications to the right source.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/taskdeck/internal/source"
)

// GlobalSourceName names the source for the tasks file shared by all worktrees.
const GlobalSourceName = "global"

// Options configure a Workspace.
type Options struct {
	// Root is the worktree directory.
	Root string
	// TasksPatterns match native tasks files relative to Root.
	TasksPatterns []string
	// VSCodePatterns match VS Code tasks files relative to Root.
	VSCodePatterns []string
	// GlobalTasksFile is an absolute path, or empty.
	GlobalTasksFile string
	// OnRefresh is installed on every source created.
	OnRefresh source.RefreshFunc
}

// Workspace owns the file sources of one worktree.
type Workspace struct {
	opts     Options
	fsys     fs.FS
	registry *source.Registry

	mu      sync.Mutex
	sources map[string]*source.FileSource
	order   []string
	group   *errgroup.Group
	runCtx  context.Context
}

// New creates a workspace adding its sources to reg.
func New(opts Options, reg *source.Registry) (*Workspace, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	opts.Root = root
	return &Workspace{
		opts:     opts,
		fsys:     os.DirFS(root),
		registry: reg,
		sources:  make(map[string]*source.FileSource),
	}, nil
}

// Root returns the absolute worktree directory.
func (w *Workspace) Root() string { return w.opts.Root }

// Registry returns the registry sources are added to.
func (w *Workspace) Registry() *source.Registry { return w.registry }

// WatchedFiles lists absolute paths outside Root that must be watched.
func (w *Workspace) WatchedFiles() []string {
	if w.opts.GlobalTasksFile == "" {
		return nil
	}
	return []string{w.opts.GlobalTasksFile}
}

// Match reports whether a path relative to Root is a tasks file.
func (w *Workspace) Match(rel string) bool {
	_, ok := w.kindOf(rel)
	return ok
}

func (w *Workspace) kindOf(rel string) (source.Kind, bool) {
	switch {
	case source.MatchAny(w.opts.TasksPatterns, rel):
		return source.KindStatic, true
	case source.MatchAny(w.opts.VSCodePatterns, rel):
		return source.KindVSCode, true
	}
	return "", false
}

// Scan discovers tasks files and registers a source for every new one.
// New sources are loaded before Scan returns. It reports how many sources
// were added.
func (w *Workspace) Scan(ctx context.Context) (int, error) {
	var found []string
	if w.opts.GlobalTasksFile != "" {
		found = append(found, w.opts.GlobalTasksFile)
	}
	patterns := slices.Concat(w.opts.TasksPatterns, w.opts.VSCodePatterns)
	matches, err := source.Discover(w.fsys, patterns)
	if err != nil {
		return 0, err
	}
	found = append(found, matches...)

	added := 0
	var errs []error
	for _, p := range found {
		src, isNew, err := w.ensure(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !isNew {
			continue
		}
		added++
		if err := src.Reload(ctx); err != nil {
			slog.Warn("workspace: initial load failed", "source", src.Name(), "err", err)
		}
	}
	if added > 0 {
		slog.Info("workspace: sources added", "root", w.opts.Root, "added", added, "total", len(w.Sources()))
	}
	return added, errors.Join(errs...)
}

// Reload reloads every source synchronously and joins their errors.
func (w *Workspace) Reload(ctx context.Context) error {
	var errs []error
	for _, src := range w.Sources() {
		if err := src.Reload(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Changed routes changed paths, as reported by the watcher, to their
// sources. Unknown paths that match a pattern get a new source.
func (w *Workspace) Changed(ctx context.Context, paths []string) {
	for _, p := range paths {
		if p != w.opts.GlobalTasksFile && !w.Match(p) {
			continue
		}
		src, isNew, err := w.ensure(p)
		if err != nil {
			slog.Warn("workspace: cannot add source", "path", p, "err", err)
			continue
		}
		if isNew && !w.running() {
			if err := src.Reload(ctx); err != nil {
				slog.Warn("workspace: load failed", "source", src.Name(), "err", err)
			}
			continue
		}
		src.Notify()
	}
}

// Sources returns the file sources in registration order.
func (w *Workspace) Sources() []*source.FileSource {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*source.FileSource, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.sources[name])
	}
	return out
}

// Run drives the reload loop of every source, including the ones added
// later, until ctx is cancelled.
func (w *Workspace) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	w.mu.Lock()
	if w.group != nil {
		w.mu.Unlock()
		return errors.New("workspace: already running")
	}
	w.group, w.runCtx = g, gctx
	for _, name := range w.order {
		src := w.sources[name]
		g.Go(func() error { return src.Run(gctx) })
	}
	w.mu.Unlock()

	// Keeps the group alive while no source exists yet.
	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()

	w.mu.Lock()
	w.group, w.runCtx = nil, nil
	w.mu.Unlock()
	return err
}

func (w *Workspace) running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.group != nil
}

// ensure returns the source for path, creating and registering it if needed.
func (w *Workspace) ensure(path string) (*source.FileSource, bool, error) {
	name, kind := path, source.KindStatic
	if path == w.opts.GlobalTasksFile {
		name = GlobalSourceName
	} else {
		k, ok := w.kindOf(path)
		if !ok {
			return nil, false, fmt.Errorf("%s: not a tasks file", path)
		}
		kind = k
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if src, ok := w.sources[name]; ok {
		return src, false, nil
	}

	var src *source.FileSource
	switch {
	case name == GlobalSourceName:
		src = source.NewStaticSource(name, os.DirFS(filepath.Dir(path)), filepath.Base(path))
	case kind == source.KindVSCode:
		src = source.NewVSCodeSource(name, w.fsys, path)
	default:
		src = source.NewStaticSource(name, w.fsys, path)
	}
	if w.opts.OnRefresh != nil {
		src.SetOnRefresh(w.opts.OnRefresh)
	}
	if err := w.registry.Add(src); err != nil {
		return nil, false, err
	}
	w.sources[name] = src
	w.order = append(w.order, name)

	if w.group != nil {
		ctx := w.runCtx
		w.group.Go(func() error { return src.Run(ctx) })
	}
	slog.Debug("workspace: source registered", "source", name, "kind", kind)
	return src, true, nil
}
