// Package rerun keeps the executor-side bookkeeping for spawned tasks: which
// terminal tab a task id is bound to, which runs are still live, and what ran
// last.
package rerun

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

var (
	// ErrConcurrencyConflict is returned when a task that does not allow
	// concurrent runs is started while a previous run is still live.
	ErrConcurrencyConflict = errors.New("task is already running")
	// ErrUnknownRun is returned by Finish for ids it never handed out.
	ErrUnknownRun = errors.New("unknown run")
)

// ConflictError names the task and the live run blocking it.
type ConflictError struct {
	TaskID task.TaskID
	RunID  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %q: %s (run %s)", e.TaskID, ErrConcurrencyConflict, e.RunID)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// Run is one live instance of a task.
type Run struct {
	ID       string      `json:"id"`
	TaskID   task.TaskID `json:"task_id"`
	Label    string      `json:"label"`
	Terminal string      `json:"terminal"`
	Started  time.Time   `json:"started"`
}

// Tracker assigns terminals to spawns and gates concurrent runs.
type Tracker struct {
	mu   sync.Mutex
	runs map[string]Run
	// tabs binds a task id to the terminal it reuses on rerun.
	tabs map[task.TaskID]string
	// busy maps a terminal to the run occupying it.
	busy map[string]string
	last *task.SpawnInTerminal
	now  func() time.Time
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[string]Run),
		tabs: make(map[task.TaskID]string),
		busy: make(map[string]string),
		now:  time.Now,
	}
}

// Begin records a new run of spawn and returns it with the terminal to use.
//
// Without use_new_terminal a task keeps reusing the tab it got first. When
// that tab is still busy, a task allowing concurrent runs gets a fresh tab
// and any other task fails with ErrConcurrencyConflict.
func (t *Tracker) Begin(spawn task.SpawnInTerminal) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !spawn.AllowConcurrentRuns {
		for _, r := range t.runs {
			if r.TaskID == spawn.ID {
				return Run{}, &ConflictError{TaskID: spawn.ID, RunID: r.ID}
			}
		}
	}

	terminal := ""
	if !spawn.UseNewTerminal {
		if tab, ok := t.tabs[spawn.ID]; ok {
			if _, occupied := t.busy[tab]; !occupied {
				terminal = tab
			}
		}
	}
	if terminal == "" {
		terminal = "terminal-" + uuid.NewString()[:8]
		if _, bound := t.tabs[spawn.ID]; !bound && !spawn.UseNewTerminal {
			t.tabs[spawn.ID] = terminal
		}
	}

	run := Run{
		ID:       uuid.NewString(),
		TaskID:   spawn.ID,
		Label:    spawn.Label,
		Terminal: terminal,
		Started:  t.now(),
	}
	t.runs[run.ID] = run
	t.busy[terminal] = run.ID

	last := spawn.Clone()
	t.last = &last
	return run, nil
}

// Finish marks a run as ended and frees its terminal for the next rerun.
func (t *Tracker) Finish(runID string) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	delete(t.runs, runID)
	if t.busy[run.Terminal] == runID {
		delete(t.busy, run.Terminal)
	}
	return run, nil
}

// Live returns the live runs ordered by start time.
func (t *Tracker) Live() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Run, 0, len(t.runs))
	for _, r := range t.runs {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Run) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Terminal returns the tab bound to id, if any.
func (t *Tracker) Terminal(id task.TaskID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tab, ok := t.tabs[id]
	return tab, ok
}

// Last returns the most recently started spawn.
func (t *Tracker) Last() (task.SpawnInTerminal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return task.SpawnInTerminal{}, false
	}
	return t.last.Clone(), true
}
