package source

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

// ErrDuplicateTaskID marks task ids shared by several entries of a snapshot.
var ErrDuplicateTaskID = errors.New("duplicate task id")

// DuplicateTaskIDError names the id and every source that produced it.
type DuplicateTaskIDError struct {
	ID      task.TaskID
	Sources []string
}

func (e *DuplicateTaskIDError) Error() string {
	return fmt.Sprintf("%s %q in sources %s", ErrDuplicateTaskID, e.ID, strings.Join(e.Sources, ", "))
}

func (e *DuplicateTaskIDError) Unwrap() error { return ErrDuplicateTaskID }

// Entry is a schedulable task together with the source it came from.
type Entry struct {
	Source string
	Kind   Kind
	Task   task.Task
}

// Diagnostic is a failure attributed to a source.
type Diagnostic struct {
	Source string
	Kind   Kind
	Err    error
}

// Snapshot is the result of one collection pass over the registry.
type Snapshot struct {
	Entries     []Entry
	Diagnostics []Diagnostic
}

// Lookup finds the entry with the given id.
func (s Snapshot) Lookup(id task.TaskID) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Task.ID() == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Tasks returns the scheduled tasks in order.
func (s Snapshot) Tasks() []task.Task {
	out := make([]task.Task, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Task)
	}
	return out
}

// Registry holds an ordered set of sources.
type Registry struct {
	mu      sync.Mutex
	sources []Source
	oneshot *OneshotSource
}

// NewRegistry creates a registry. The oneshot source, when non-nil, is
// registered first and is reachable through Oneshot.
func NewRegistry(oneshot *OneshotSource, sources ...Source) (*Registry, error) {
	r := &Registry{oneshot: oneshot}
	if oneshot != nil {
		r.sources = append(r.sources, oneshot)
	}
	for _, s := range sources {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a source. Source names must be unique.
func (r *Registry) Add(s Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sources {
		if existing.Name() == s.Name() {
			return fmt.Errorf("source %q already registered", s.Name())
		}
	}
	r.sources = append(r.sources, s)
	return nil
}

// Sources returns the registered sources in order.
func (r *Registry) Sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Oneshot returns the registry's oneshot source, or nil.
func (r *Registry) Oneshot() *OneshotSource { return r.oneshot }

// Snapshot collects tasks from every source in order.
//
// Errors yielded by a source become diagnostics for that source only. Entries
// sharing a task id are all left out and reported once, since which of them
// should win is undefined.
func (r *Registry) Snapshot() Snapshot {
	var snap Snapshot
	for _, src := range r.Sources() {
		name, kind := src.Name(), src.Kind()
		for t, err := range src.TasksToSchedule() {
			if err != nil {
				snap.Diagnostics = append(snap.Diagnostics, Diagnostic{Source: name, Kind: kind, Err: err})
				continue
			}
			snap.Entries = append(snap.Entries, Entry{Source: name, Kind: kind, Task: t})
		}
	}
	snap.dropDuplicates()

	if len(snap.Diagnostics) > 0 {
		slog.Debug("registry: snapshot has diagnostics", "tasks", len(snap.Entries), "diagnostics", len(snap.Diagnostics))
	}
	return snap
}

func (s *Snapshot) dropDuplicates() {
	owners := make(map[task.TaskID][]Entry, len(s.Entries))
	var order []task.TaskID
	for _, e := range s.Entries {
		id := e.Task.ID()
		if _, seen := owners[id]; !seen {
			order = append(order, id)
		}
		owners[id] = append(owners[id], e)
	}

	kept := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if len(owners[e.Task.ID()]) == 1 {
			kept = append(kept, e)
		}
	}

	for _, id := range order {
		dup := owners[id]
		if len(dup) < 2 {
			continue
		}
		srcs := make([]string, len(dup))
		for i, e := range dup {
			srcs[i] = e.Source
		}
		s.Diagnostics = append(s.Diagnostics, Diagnostic{
			Source: dup[0].Source,
			Kind:   dup[0].Kind,
			Err:    &DuplicateTaskIDError{ID: id, Sources: srcs},
		})
	}
	s.Entries = kept
}
