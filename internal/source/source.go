// Package source provides the producers of schedulable tasks and the
// Registry that aggregates them.
//
// Sources never block their callers on I/O: file-backed sources keep a
// materialized task list that is swapped in one step after a reload
// completes, and TasksToSchedule only reads that list.
package source

import (
	"errors"
	"fmt"
	"iter"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

// Kind tags the known source variants.
type Kind string

const (
	// KindStatic is a tasks file in the native format.
	KindStatic Kind = "static"
	// KindOneshot holds ad-hoc tasks built from free text.
	KindOneshot Kind = "oneshot"
	// KindVSCode adapts a .vscode/tasks.json file.
	KindVSCode Kind = "vscode"
)

// Kinds is the registered-variant list.
var Kinds = []Kind{KindStatic, KindOneshot, KindVSCode}

// Source produces tasks that can be scheduled.
//
// TasksToSchedule yields either a task or an error describing a task (or the
// whole source) that could not be loaded; a consumer keeps going past errors.
type Source interface {
	Name() string
	Kind() Kind
	TasksToSchedule() iter.Seq2[task.Task, error]
}

// ErrSourceParse marks failures to parse a source's backing data.
var ErrSourceParse = errors.New("source parse error")

// ParseError reports a file or a single entry of it that failed to parse.
type ParseError struct {
	Source string
	Path   string
	// Index is the position of the failing entry, -1 for the whole file.
	Index int
	Label string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Path, e.Err)
	case e.Label != "":
		return fmt.Sprintf("%s: %s: task #%d %q: %v", e.Source, e.Path, e.Index, e.Label, e.Err)
	default:
		return fmt.Sprintf("%s: %s: task #%d: %v", e.Source, e.Path, e.Index, e.Err)
	}
}

func (e *ParseError) Unwrap() []error { return []error{ErrSourceParse, e.Err} }
