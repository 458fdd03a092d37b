package handoff

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/taskdeck/internal/metrics"
	"github.com/crystaldolphin/taskdeck/internal/rerun"
	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/task"
	"github.com/crystaldolphin/taskdeck/internal/workspace"
)

const fixtureTasks = `[
	{"label": "build", "command": "make", "cwd": "$WorktreeRoot/build"},
	{"label": "open", "command": "xdg-open", "args": ["$TASKDECK_FILE"], "cwd": "$File/.."},
	{"label": "watch", "command": "make", "args": ["watch"], "allow_concurrent_runs": true}
]`

func newTestScheduler(t *testing.T, policy source.DuplicatePolicy) (*Scheduler, string) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, ".taskdeck", "tasks.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(fixtureTasks), 0o644))

	reg, err := source.NewRegistry(source.NewOneshotSource(policy))
	require.NoError(t, err)
	ws, err := workspace.New(workspace.Options{
		Root:          root,
		TasksPatterns: []string{"**/.taskdeck/tasks.json"},
	}, reg)
	require.NoError(t, err)
	_, err = ws.Scan(context.Background())
	require.NoError(t, err)

	var defaults task.TaskVariables
	defaults.Insert(task.MustCustomVariable("PROFILE"), "debug")
	return NewScheduler(ws, rerun.NewTracker(), metrics.New(), defaults), ws.Root()
}

const buildID = task.TaskID(".taskdeck/tasks.json_0_build")

func TestScheduler_List(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)

	resp := s.Process(context.Background(), Request{Type: TypeList, Seq: 7})
	assert.Equal(t, TypeList, resp.Type)
	assert.Equal(t, int64(7), resp.Seq)
	require.Len(t, resp.Tasks, 3)
	assert.Equal(t, buildID, resp.Tasks[0].ID)
	assert.Equal(t, "build", resp.Tasks[0].Label)
	assert.Equal(t, source.KindStatic, resp.Tasks[0].Kind)
	assert.Empty(t, resp.Diagnostics)
}

func TestScheduler_PrepareUsesWorkspaceRoot(t *testing.T) {
	s, root := newTestScheduler(t, source.DuplicateDedupe)

	resp := s.Process(context.Background(), Request{Type: TypePrepare, TaskID: buildID})
	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Spawn)
	assert.Equal(t, root+"/build", resp.Spawn.Cwd)
	assert.Equal(t, "debug", resp.Spawn.Env["TASKDECK_PROFILE"])
	assert.Equal(t, root, resp.Spawn.Env["TASKDECK_WORKTREE_ROOT"])
	require.NotNil(t, resp.Run)
	assert.Equal(t, buildID, resp.Run.TaskID)
}

func TestScheduler_PrepareWithContext(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)

	resp := s.Process(context.Background(), Request{
		Type:   TypePrepare,
		TaskID: ".taskdeck/tasks.json_1_open",
		DryRun: true,
		Context: &ContextPayload{
			Variables: map[string]string{
				"File":         "/repo/docs/index.html",
				"TASKDECK_ROW": "4",
				"PROFILE":      "release",
			},
		},
	})
	require.Empty(t, resp.Error)
	assert.Equal(t, "/repo/docs/index.html/..", resp.Spawn.Cwd)
	assert.Equal(t, []string{"$TASKDECK_FILE"}, resp.Spawn.Args, "args are passed through for the shell")
	assert.Equal(t, "4", resp.Spawn.Env["TASKDECK_ROW"])
	assert.Equal(t, "release", resp.Spawn.Env["TASKDECK_PROFILE"])
	assert.Nil(t, resp.Run, "dry runs are not tracked")
	assert.Empty(t, s.Tracker().Live())
}

func TestScheduler_PrepareErrors(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	resp := s.Process(ctx, Request{Type: TypePrepare, TaskID: ".taskdeck/tasks.json_1_open"})
	assert.Equal(t, TypeError, resp.Type)
	assert.Equal(t, metrics.ResultUnresolved, resp.Code)
	assert.Nil(t, resp.Spawn)

	resp = s.Process(ctx, Request{Type: TypePrepare, TaskID: "nope"})
	assert.Equal(t, CodeNotFound, resp.Code)

	resp = s.Process(ctx, Request{Type: TypePrepare})
	assert.Equal(t, CodeBadRequest, resp.Code)

	resp = s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID, Context: &ContextPayload{
		Variables: map[string]string{"": "x"},
	}})
	assert.Equal(t, CodeBadRequest, resp.Code)

	resp = s.Process(ctx, Request{Type: "explode"})
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestScheduler_ConcurrencyAndFinish(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	first := s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID})
	require.NotNil(t, first.Run)

	second := s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID})
	assert.Equal(t, metrics.ResultConflict, second.Code)

	runs := s.Process(ctx, Request{Type: TypeRuns})
	require.Len(t, runs.Runs, 1)

	done := s.Process(ctx, Request{Type: TypeFinished, RunID: first.Run.ID})
	require.Empty(t, done.Error)
	assert.Equal(t, first.Run.ID, done.Run.ID)

	again := s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID})
	require.NotNil(t, again.Run)
	assert.Equal(t, first.Run.Terminal, again.Run.Terminal, "reruns reuse the terminal")

	missing := s.Process(ctx, Request{Type: TypeFinished, RunID: "unknown"})
	assert.Equal(t, CodeNotFound, missing.Code)
}

func TestScheduler_Rerun(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	resp := s.Process(ctx, Request{Type: TypeRerun})
	assert.Equal(t, CodeNotFound, resp.Code)

	watch := task.TaskID(".taskdeck/tasks.json_2_watch")
	first := s.Process(ctx, Request{Type: TypePrepare, TaskID: watch})
	require.NotNil(t, first.Run)

	resp = s.Process(ctx, Request{Type: TypeRerun})
	require.Empty(t, resp.Error)
	assert.Equal(t, watch, resp.Spawn.ID)
	require.NotNil(t, resp.Run)
	assert.NotEqual(t, first.Run.ID, resp.Run.ID)
}

func TestScheduler_Oneshot(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateReject)
	ctx := context.Background()

	resp := s.Process(ctx, Request{Type: TypeOneshot, Prompt: "echo hi", DryRun: true})
	require.Empty(t, resp.Error)
	assert.Equal(t, task.TaskID("echo hi"), resp.Spawn.ID)
	assert.Equal(t, "echo hi", resp.Spawn.Command)

	resp = s.Process(ctx, Request{Type: TypeOneshot, Prompt: "echo hi"})
	assert.Equal(t, CodeDuplicate, resp.Code)

	resp = s.Process(ctx, Request{Type: TypeOneshot, Prompt: " "})
	assert.Equal(t, CodeBadRequest, resp.Code)

	list := s.Process(ctx, Request{Type: TypeList})
	assert.Len(t, list.Tasks, 4, "pending oneshot shows up once")
	list = s.Process(ctx, Request{Type: TypeList})
	assert.Len(t, list.Tasks, 3)
}

func TestScheduler_RefreshPicksUpNewFiles(t *testing.T) {
	s, root := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	extra := filepath.Join(root, "svc", ".taskdeck", "tasks.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(extra), 0o755))
	require.NoError(t, os.WriteFile(extra, []byte(`[{"label":"svc","command":"run"}]`), 0o644))

	resp := s.Process(ctx, Request{Type: TypeRefresh})
	assert.Equal(t, TypeRefresh, resp.Type)
	assert.Len(t, resp.Tasks, 4)
}

func TestScheduler_DoRunsOnLoop(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	resp, err := s.Do(ctx, Request{Type: TypeList})
	require.NoError(t, err)
	assert.Len(t, resp.Tasks, 3)

	cancel()
	_, err = s.Do(ctx, Request{Type: TypeList})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_PrepareSeesReloadedTasks(t *testing.T) {
	s, root := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	list := s.Process(ctx, Request{Type: TypeList})
	require.Len(t, list.Tasks, 3)

	path := filepath.Join(root, ".taskdeck", "tasks.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"label": "build", "command": "ninja"}]`), 0o644))
	require.NoError(t, s.ws.Reload(ctx))

	resp := s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID, DryRun: true})
	require.Empty(t, resp.Error)
	assert.Equal(t, "ninja", resp.Spawn.Command)

	resp = s.Process(ctx, Request{Type: TypePrepare, TaskID: ".taskdeck/tasks.json_2_watch", DryRun: true})
	assert.Equal(t, CodeNotFound, resp.Code, "removed tasks are gone without a new list")
}

func TestScheduler_ListedOneshotOutlivesOtherLookups(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)
	ctx := context.Background()

	oneshot, err := s.ws.Registry().Oneshot().Spawn("make check")
	require.NoError(t, err)

	list := s.Process(ctx, Request{Type: TypeList})
	require.Len(t, list.Tasks, 4)

	resp := s.Process(ctx, Request{Type: TypePrepare, TaskID: buildID, DryRun: true})
	require.Empty(t, resp.Error)

	resp = s.Process(ctx, Request{Type: TypePrepare, TaskID: oneshot.ID(), DryRun: true})
	require.Empty(t, resp.Error)
	assert.Equal(t, "make check", resp.Spawn.Command)

	// A new list forgets the drained one-shot.
	s.Process(ctx, Request{Type: TypeList})
	resp = s.Process(ctx, Request{Type: TypePrepare, TaskID: oneshot.ID(), DryRun: true})
	assert.Equal(t, CodeNotFound, resp.Code)
}

func TestScheduler_ConflictingVariableSpellings(t *testing.T) {
	s, _ := newTestScheduler(t, source.DuplicateDedupe)

	resp := s.Process(context.Background(), Request{
		Type:   TypePrepare,
		TaskID: buildID,
		DryRun: true,
		Context: &ContextPayload{Variables: map[string]string{
			"File":          "/a.go",
			"TASKDECK_FILE": "/b.go",
		}},
	})
	assert.Equal(t, CodeBadRequest, resp.Code)
	assert.Contains(t, resp.Error, "conflicting")
}
