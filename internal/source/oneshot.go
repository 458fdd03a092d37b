package source

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

// DuplicatePolicy decides what happens when a one-shot prompt is submitted
// while an identical one is still pending.
type DuplicatePolicy string

const (
	// DuplicateDedupe keeps the pending task and returns it again.
	DuplicateDedupe DuplicatePolicy = "dedupe"
	// DuplicateReject refuses the second prompt with ErrDuplicateOneshot.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateSuffix gives the second task a unique id suffix.
	DuplicateSuffix DuplicatePolicy = "suffix"
)

// ParseDuplicatePolicy maps a config value onto a policy; empty means dedupe.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(s)); p {
	case "":
		return DuplicateDedupe, nil
	case DuplicateDedupe, DuplicateReject, DuplicateSuffix:
		return p, nil
	default:
		return "", fmt.Errorf("unknown oneshot duplicate policy %q", s)
	}
}

var (
	// ErrDuplicateOneshot is returned under DuplicateReject.
	ErrDuplicateOneshot = errors.New("identical oneshot task already pending")
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("oneshot prompt is empty")
)

// OneshotSource holds ad-hoc tasks until they are scheduled once.
type OneshotSource struct {
	policy DuplicatePolicy

	mu      sync.Mutex
	pending []task.TaskTemplate
}

var _ Source = (*OneshotSource)(nil)

// NewOneshotSource creates an empty source using policy for duplicates.
func NewOneshotSource(policy DuplicatePolicy) *OneshotSource {
	if policy == "" {
		policy = DuplicateDedupe
	}
	return &OneshotSource{policy: policy}
}

func (s *OneshotSource) Name() string { return string(KindOneshot) }
func (s *OneshotSource) Kind() Kind   { return KindOneshot }

// Policy returns the duplicate policy in effect.
func (s *OneshotSource) Policy() DuplicatePolicy { return s.policy }

// Spawn records a new one-shot task built from prompt and returns it.
func (s *OneshotSource) Spawn(prompt string) (task.TaskTemplate, error) {
	if strings.TrimSpace(prompt) == "" {
		return task.TaskTemplate{}, ErrEmptyPrompt
	}
	tmpl := task.Oneshot(prompt)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findLocked(tmpl.ID()); ok {
		switch s.policy {
		case DuplicateReject:
			return task.TaskTemplate{}, fmt.Errorf("%w: %q", ErrDuplicateOneshot, prompt)
		case DuplicateSuffix:
			tmpl = tmpl.WithID(task.TaskID(prompt + "#" + uuid.NewString()[:8]))
		default:
			return existing, nil
		}
	}
	s.pending = append(s.pending, tmpl)
	return tmpl, nil
}

// Len returns the number of pending tasks.
func (s *OneshotSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// TasksToSchedule hands out the pending tasks and clears them.
func (s *OneshotSource) TasksToSchedule() iter.Seq2[task.Task, error] {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	return func(yield func(task.Task, error) bool) {
		for _, t := range pending {
			if !yield(t, nil) {
				return
			}
		}
	}
}

func (s *OneshotSource) findLocked(id task.TaskID) (task.TaskTemplate, bool) {
	for _, t := range s.pending {
		if t.ID() == id {
			return t, true
		}
	}
	return task.TaskTemplate{}, false
}
