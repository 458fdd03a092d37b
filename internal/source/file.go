package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

// decodeFunc turns file contents into per-entry results. A non-nil error
// means the whole file is unusable.
type decodeFunc func(src *FileSource, data []byte) ([]entryResult, error)

type entryResult struct {
	tmpl task.TaskTemplate
	err  error
}

// RefreshFunc observes every completed reload.
type RefreshFunc func(name string, kind Kind, tasks int, err error, took time.Duration)

// FileSource is a source backed by one file read through an fs.FS. Static
// tasks files and VS Code task files share it and differ only in decoding.
type FileSource struct {
	name   string
	kind   Kind
	fsys   fs.FS
	path   string
	decode decodeFunc

	onRefresh RefreshFunc
	notify    chan struct{}
	reloadMu  sync.Mutex

	mu       sync.RWMutex
	tasks    []task.TaskTemplate
	entryErr []error
	fileErr  error
	loaded   bool
}

func newFileSource(name string, kind Kind, fsys fs.FS, path string, decode decodeFunc) *FileSource {
	return &FileSource{
		name:   name,
		kind:   kind,
		fsys:   fsys,
		path:   path,
		decode: decode,
		notify: make(chan struct{}, 1),
	}
}

func (s *FileSource) Name() string { return s.name }
func (s *FileSource) Kind() Kind   { return s.kind }

// Path is the file path inside the source's fs.FS.
func (s *FileSource) Path() string { return s.path }

// SetOnRefresh registers an observer for completed reloads.
// Must be set before Run or Reload are called.
func (s *FileSource) SetOnRefresh(fn RefreshFunc) { s.onRefresh = fn }

// Loaded reports whether at least one reload has completed.
func (s *FileSource) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// TasksToSchedule yields the materialized tasks followed by any entry or
// file errors from the latest reload.
func (s *FileSource) TasksToSchedule() iter.Seq2[task.Task, error] {
	s.mu.RLock()
	tasks := slices.Clone(s.tasks)
	errs := slices.Clone(s.entryErr)
	if s.fileErr != nil {
		errs = append(errs, s.fileErr)
	}
	s.mu.RUnlock()

	return func(yield func(task.Task, error) bool) {
		for _, t := range tasks {
			if !yield(t, nil) {
				return
			}
		}
		for _, err := range errs {
			if !yield(nil, err) {
				return
			}
		}
	}
}

// Notify requests a reload. Requests arriving while one is pending are
// coalesced; Run performs the reload.
func (s *FileSource) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run reloads the source on every notification until ctx is cancelled.
func (s *FileSource) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
			if err := s.Reload(ctx); err != nil {
				slog.Warn("source: reload failed", "source", s.name, "err", err)
			}
		}
	}
}

// Reload reads and parses the backing file and swaps the materialized list
// in one step. Reloads of one source never interleave.
//
// A missing file yields an empty list. When the file cannot be read or
// parsed as a whole, the previous tasks are kept and the failure is reported
// through TasksToSchedule as well as returned.
func (s *FileSource) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	tasks, entryErrs, err := s.load()

	s.mu.Lock()
	if err != nil {
		s.fileErr = err
	} else {
		s.tasks = tasks
		s.entryErr = entryErrs
		s.fileErr = nil
	}
	s.loaded = true
	count := len(s.tasks)
	s.mu.Unlock()

	if s.onRefresh != nil {
		s.onRefresh(s.name, s.kind, count, err, time.Since(start))
	}
	if err == nil {
		slog.Debug("source: reloaded", "source", s.name, "tasks", count, "errors", len(entryErrs))
	}
	return err
}

func (s *FileSource) load() ([]task.TaskTemplate, []error, error) {
	data, err := fs.ReadFile(s.fsys, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, s.parseError(-1, "", fmt.Errorf("read: %w", err))
	}

	results, err := s.decode(s, data)
	if err != nil {
		return nil, nil, s.parseError(-1, "", err)
	}

	var tasks []task.TaskTemplate
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		tasks = append(tasks, r.tmpl)
	}
	return tasks, errs, nil
}

func (s *FileSource) parseError(index int, label string, err error) *ParseError {
	return &ParseError{Source: s.name, Path: s.path, Index: index, Label: label, Err: err}
}

// taskID builds the identifier of the entry at index. It stays stable while
// the entry keeps its position and label.
func (s *FileSource) taskID(index int, label string) task.TaskID {
	return task.TaskID(fmt.Sprintf("%s_%d_%s", s.name, index, label))
}
