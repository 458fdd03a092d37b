// Package handoff hands prepared spawns to an external executor. All
// requests are processed one at a time by a Scheduler, which owns the
// drained one-shot tasks and the rerun tracker.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crystaldolphin/taskdeck/internal/metrics"
	"github.com/crystaldolphin/taskdeck/internal/rerun"
	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/task"
	"github.com/crystaldolphin/taskdeck/internal/workspace"
)

type call struct {
	req   Request
	reply chan Response
}

// Scheduler serializes requests against the task registry.
type Scheduler struct {
	ws       *workspace.Workspace
	tracker  *rerun.Tracker
	metrics  *metrics.Metrics
	defaults task.TaskVariables

	calls chan call

	// One-shot tasks drained by the latest list and by lookups since. Owned
	// by whoever calls Process; with Run that is a single goroutine.
	oneshots []source.Entry
}

// NewScheduler creates a scheduler. defaults are merged under the
// variables of every request.
func NewScheduler(ws *workspace.Workspace, tracker *rerun.Tracker, m *metrics.Metrics, defaults task.TaskVariables) *Scheduler {
	return &Scheduler{
		ws:       ws,
		tracker:  tracker,
		metrics:  m,
		defaults: defaults.Clone(),
		calls:    make(chan call, 64),
	}
}

// Tracker returns the rerun tracker.
func (s *Scheduler) Tracker() *rerun.Tracker { return s.tracker }

// Run processes queued requests until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler: started")
	for {
		select {
		case c := <-s.calls:
			c.reply <- s.Process(ctx, c.req)
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return ctx.Err()
		}
	}
}

// Do queues req for Run and waits for the response.
func (s *Scheduler) Do(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	c := call{req: req, reply: make(chan Response, 1)}
	select {
	case s.calls <- c:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
	select {
	case resp := <-c.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Process handles one request directly. It must not be called concurrently
// with itself or with Run.
func (s *Scheduler) Process(ctx context.Context, req Request) Response {
	switch req.Type {
	case TypeList:
		return s.list(req)
	case TypePrepare:
		return s.prepare(req)
	case TypeOneshot:
		return s.oneshot(req)
	case TypeFinished:
		return s.finished(req)
	case TypeRefresh:
		return s.refresh(ctx, req)
	case TypeRerun:
		return s.rerun(req)
	case TypeRuns:
		return Response{Type: TypeRuns, Seq: req.Seq, Runs: s.tracker.Live()}
	default:
		return errorResponse(req, CodeBadRequest, fmt.Errorf("unknown request type %q", req.Type))
	}
}

// Snapshot takes a fresh registry snapshot. The one-shot tasks it drains
// stay preparable until the next Snapshot.
func (s *Scheduler) Snapshot() source.Snapshot {
	snap := s.ws.Registry().Snapshot()
	s.oneshots = s.oneshots[:0]
	s.keepOneshots(snap)
	if s.metrics != nil {
		s.metrics.ObserveSnapshot(snap)
	}
	return snap
}

func (s *Scheduler) keepOneshots(snap source.Snapshot) {
	for _, e := range snap.Entries {
		if e.Kind == source.KindOneshot {
			s.oneshots = append(s.oneshots, e)
		}
	}
}

func (s *Scheduler) list(req Request) Response {
	snap := s.Snapshot()
	return Response{Type: TypeList, Seq: req.Seq, Tasks: tasksOf(snap), Diagnostics: diagnosticsOf(snap)}
}

// lookup resolves id against the current registry state, so edits and
// removals in tasks files are seen as soon as their source has reloaded.
// Drained one-shot tasks are only known to the scheduler.
func (s *Scheduler) lookup(id task.TaskID) (source.Entry, bool) {
	for _, e := range s.oneshots {
		if e.Task.ID() == id {
			return e, true
		}
	}
	snap := s.ws.Registry().Snapshot()
	s.keepOneshots(snap)
	return snap.Lookup(id)
}

func (s *Scheduler) prepare(req Request) Response {
	if req.TaskID == "" {
		return errorResponse(req, CodeBadRequest, errors.New("prepare: missing task_id"))
	}
	entry, ok := s.lookup(req.TaskID)
	if !ok {
		s.observeResult(metrics.ResultNotFound)
		return errorResponse(req, CodeNotFound, fmt.Errorf("task %q not found", req.TaskID))
	}
	return s.spawn(req, entry.Task)
}

func (s *Scheduler) oneshot(req Request) Response {
	oneshot := s.ws.Registry().Oneshot()
	if oneshot == nil {
		return errorResponse(req, CodeBadRequest, errors.New("oneshot tasks are disabled"))
	}
	tmpl, err := oneshot.Spawn(req.Prompt)
	if err != nil {
		code := CodeBadRequest
		if errors.Is(err, source.ErrDuplicateOneshot) {
			code = CodeDuplicate
		}
		return errorResponse(req, code, err)
	}
	return s.spawn(req, tmpl)
}

func (s *Scheduler) spawn(req Request, t task.Task) Response {
	cx, err := s.context(req.Context)
	if err != nil {
		return errorResponse(req, CodeBadRequest, err)
	}
	spawn, err := t.PrepareExec(cx)
	if s.metrics != nil {
		s.metrics.ObservePrepare(err)
	}
	if err != nil {
		return errorResponse(req, metrics.Classify(err), err)
	}

	resp := Response{Type: req.Type, Seq: req.Seq, Spawn: &spawn}
	if req.DryRun {
		return resp
	}
	return s.begin(req, resp, spawn)
}

func (s *Scheduler) begin(req Request, resp Response, spawn task.SpawnInTerminal) Response {
	run, err := s.tracker.Begin(spawn)
	if err != nil {
		s.observeResult(metrics.ResultConflict)
		return errorResponse(req, metrics.Classify(err), err)
	}
	s.observeLive()
	slog.Debug("scheduler: run started", "task", spawn.ID, "run", run.ID, "terminal", run.Terminal)
	resp.Run = &run
	return resp
}

func (s *Scheduler) rerun(req Request) Response {
	spawn, ok := s.tracker.Last()
	if !ok {
		return errorResponse(req, CodeNotFound, errors.New("no task was run yet"))
	}
	resp := Response{Type: TypeRerun, Seq: req.Seq, Spawn: &spawn}
	if req.DryRun {
		return resp
	}
	return s.begin(req, resp, spawn)
}

func (s *Scheduler) finished(req Request) Response {
	run, err := s.tracker.Finish(req.RunID)
	if err != nil {
		return errorResponse(req, CodeNotFound, err)
	}
	s.observeLive()
	return Response{Type: TypeFinished, Seq: req.Seq, Run: &run}
}

func (s *Scheduler) refresh(ctx context.Context, req Request) Response {
	if _, err := s.ws.Scan(ctx); err != nil {
		slog.Warn("scheduler: scan failed", "err", err)
	}
	if err := s.ws.Reload(ctx); err != nil {
		slog.Debug("scheduler: reload reported errors", "err", err)
	}
	resp := s.list(req)
	resp.Type = TypeRefresh
	return resp
}

// context builds the task context of a request on top of the defaults. The
// worktree root falls back to the workspace root.
func (s *Scheduler) context(p *ContextPayload) (task.TaskContext, error) {
	vars := s.defaults.Clone()
	var cwd string
	if p != nil {
		cwd = p.Cwd
		reqVars, err := task.ParseTaskVariables(p.Variables)
		if err != nil {
			return task.TaskContext{}, err
		}
		vars.Extend(reqVars)
	}
	if _, ok := vars.Get(task.VariableWorktreeRoot); !ok {
		vars.Insert(task.VariableWorktreeRoot, s.ws.Root())
	}
	return task.TaskContext{Cwd: cwd, Variables: vars}, nil
}

func (s *Scheduler) observeResult(result string) {
	if s.metrics != nil {
		s.metrics.ObservePrepareResult(result)
	}
}

func (s *Scheduler) observeLive() {
	if s.metrics != nil {
		s.metrics.SetLiveRuns(len(s.tracker.Live()))
	}
}
