package source

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

func collect(t *testing.T, s Source) ([]task.Task, []error) {
	t.Helper()
	var tasks []task.Task
	var errs []error
	for tk, err := range s.TasksToSchedule() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, tk)
	}
	return tasks, errs
}

func definitionOf(t *testing.T, tk task.Task) task.Definition {
	t.Helper()
	tmpl, ok := tk.(task.TaskTemplate)
	require.True(t, ok, "expected a task.TaskTemplate, got %T", tk)
	return tmpl.Definition()
}

const relaxedTasks = `[
	// build the project
	{"label": "build", "command": "make", "args": ["all"], "cwd": "$WorktreeRoot"},
	{"label": "broken"},
	{"label": "test", "command": "go", "args": ["test", "./..."], "reveal": "never",},
]`

func TestStaticSource_RelaxedJSON(t *testing.T) {
	fsys := fstest.MapFS{"tasks.json": {Data: []byte(relaxedTasks)}}
	src := NewStaticSource("tasks", fsys, "tasks.json")

	require.NoError(t, src.Reload(context.Background()))
	assert.True(t, src.Loaded())

	tasks, errs := collect(t, src)
	require.Len(t, tasks, 2)
	assert.Equal(t, task.TaskID("tasks_0_build"), tasks[0].ID())
	assert.Equal(t, task.TaskID("tasks_2_test"), tasks[1].ID())
	assert.Equal(t, "$WorktreeRoot", tasks[0].Cwd())
	assert.Equal(t, task.RevealNever, definitionOf(t, tasks[1]).Reveal)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSourceParse)
	var perr *ParseError
	require.True(t, errors.As(errs[0], &perr))
	assert.Equal(t, 1, perr.Index)
	assert.Equal(t, "broken", perr.Label)
	assert.Equal(t, "tasks", perr.Source)
}

func TestStaticSource_YAML(t *testing.T) {
	data := `
- label: lint
  command: golangci-lint
  args: [run]
  env:
    GOFLAGS: -mod=mod
- label: serve
  command: go
  args: [run, .]
  use_new_terminal: true
  reveal: sometimes
`
	fsys := fstest.MapFS{"ci/tasks.yaml": {Data: []byte(data)}}
	src := NewStaticSource("ci", fsys, "ci/tasks.yaml")
	require.NoError(t, src.Reload(context.Background()))

	tasks, errs := collect(t, src)
	require.Len(t, tasks, 1)
	def := definitionOf(t, tasks[0])
	assert.Equal(t, "golangci-lint", def.Command)
	assert.Equal(t, []string{"run"}, def.Args)
	assert.Equal(t, map[string]string{"GOFLAGS": "-mod=mod"}, def.Env)
	assert.Equal(t, task.RevealAlways, def.Reveal)

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrSourceParse)
}

func TestStaticSource_MissingFileIsEmpty(t *testing.T) {
	src := NewStaticSource("tasks", fstest.MapFS{}, "tasks.json")
	require.NoError(t, src.Reload(context.Background()))

	tasks, errs := collect(t, src)
	assert.Empty(t, tasks)
	assert.Empty(t, errs)
}

func TestStaticSource_BadFileKeepsPreviousTasks(t *testing.T) {
	fsys := fstest.MapFS{"tasks.json": {Data: []byte(`[{"label":"a","command":"true"}]`)}}
	src := NewStaticSource("tasks", fsys, "tasks.json")
	require.NoError(t, src.Reload(context.Background()))

	fsys["tasks.json"] = &fstest.MapFile{Data: []byte(`{"label": "not a list"}`)}
	err := src.Reload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceParse)

	tasks, errs := collect(t, src)
	require.Len(t, tasks, 1)
	assert.Equal(t, "a", tasks[0].Name())
	require.Len(t, errs, 1)
	var perr *ParseError
	require.True(t, errors.As(errs[0], &perr))
	assert.Equal(t, -1, perr.Index)

	fsys["tasks.json"] = &fstest.MapFile{Data: []byte(`[{"label":"b","command":"true"}]`)}
	require.NoError(t, src.Reload(context.Background()))
	tasks, errs = collect(t, src)
	require.Len(t, tasks, 1)
	assert.Equal(t, "b", tasks[0].Name())
	assert.Empty(t, errs)
}

func TestStaticSource_SnapshotIsolatedFromReload(t *testing.T) {
	fsys := fstest.MapFS{"tasks.json": {Data: []byte(`[{"label":"a","command":"true"}]`)}}
	src := NewStaticSource("tasks", fsys, "tasks.json")
	require.NoError(t, src.Reload(context.Background()))

	seq := src.TasksToSchedule()
	fsys["tasks.json"] = &fstest.MapFile{Data: []byte(`[]`)}
	require.NoError(t, src.Reload(context.Background()))

	var names []string
	for tk, err := range seq {
		require.NoError(t, err)
		names = append(names, tk.Name())
	}
	assert.Equal(t, []string{"a"}, names)
}

func TestStaticSource_RunReloadsOnNotify(t *testing.T) {
	fsys := fstest.MapFS{"tasks.json": {Data: []byte(`[{"label":"a","command":"true"}]`)}}
	src := NewStaticSource("tasks", fsys, "tasks.json")

	refreshed := make(chan int, 4)
	src.SetOnRefresh(func(name string, kind Kind, tasks int, err error, took time.Duration) {
		assert.Equal(t, "tasks", name)
		assert.Equal(t, KindStatic, kind)
		assert.NoError(t, err)
		refreshed <- tasks
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	src.Notify()
	select {
	case n := <-refreshed:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("source was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestFileSource_NotifyCoalesces(t *testing.T) {
	src := NewStaticSource("tasks", fstest.MapFS{}, "tasks.json")
	for range 10 {
		src.Notify()
	}
	assert.Len(t, src.notify, 1)
}

func TestFileSource_ReloadHonoursCancelledContext(t *testing.T) {
	src := NewStaticSource("tasks", fstest.MapFS{}, "tasks.json")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, src.Reload(ctx), context.Canceled)
	assert.False(t, src.Loaded())
}
