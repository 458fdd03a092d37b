package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWith(cwd string, pairs map[VariableName]string) TaskContext {
	return TaskContext{Cwd: cwd, Variables: NewTaskVariables(pairs)}
}

func TestPrepare_SubstitutesCwd(t *testing.T) {
	def := NewDefinition("build", "make")
	def.Cwd = "$WorktreeRoot/build"
	tmpl := NewTemplate("build", def)

	spawn, err := Prepare(tmpl, contextWith("", map[VariableName]string{VariableWorktreeRoot: "/repo"}))
	require.NoError(t, err)
	assert.Equal(t, "/repo/build", spawn.Cwd)
}

func TestPrepare_SubstitutesCwdByEnvKey(t *testing.T) {
	def := NewDefinition("build", "make")
	def.Cwd = "${TASKDECK_WORKTREE_ROOT}/out/$TASKDECK_ROW"
	tmpl := NewTemplate("build", def)

	spawn, err := Prepare(tmpl, contextWith("/elsewhere", map[VariableName]string{
		VariableWorktreeRoot: "/repo",
		VariableRow:          "12",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/repo/out/12", spawn.Cwd)
}

func TestPrepare_UnboundVariableFails(t *testing.T) {
	def := NewDefinition("build", "make")
	def.Cwd = "$TASKDECK_FILE/.."
	tmpl := NewTemplate("build", def)

	spawn, err := Prepare(tmpl, contextWith("/fallback", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedVariable)

	var subErr *SubstitutionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "TASKDECK_FILE", subErr.Name)
	assert.Equal(t, SpawnInTerminal{}, spawn)
}

func TestPrepare_FallsBackToContextCwd(t *testing.T) {
	tmpl := NewTemplate("t", NewDefinition("t", "ls"))

	spawn, err := Prepare(tmpl, contextWith("/work", nil))
	require.NoError(t, err)
	assert.Equal(t, "/work", spawn.Cwd)

	spawn, err = Prepare(tmpl, TaskContext{})
	require.NoError(t, err)
	assert.Empty(t, spawn.Cwd)
}

func TestPrepare_TaskVariablesOverrideStaticEnv(t *testing.T) {
	def := NewDefinition("t", "env")
	def.Env = map[string]string{
		"TASKDECK_X": "1",
		"PLAIN":      "kept",
	}
	tmpl := NewTemplate("t", def)

	spawn, err := Prepare(tmpl, contextWith("", map[VariableName]string{
		MustCustomVariable("X"): "2",
	}))
	require.NoError(t, err)
	assert.Equal(t, "2", spawn.Env["TASKDECK_X"])
	assert.Equal(t, "kept", spawn.Env["PLAIN"])
}

func TestPrepare_CopiesTemplateFields(t *testing.T) {
	def := Definition{
		Label:               "test",
		Command:             "go",
		Args:                []string{"test", "./..."},
		Env:                 map[string]string{"GOFLAGS": "-count=1"},
		UseNewTerminal:      true,
		AllowConcurrentRuns: true,
		Reveal:              RevealNever,
	}
	tmpl := NewTemplate("go-test", def)

	spawn, err := tmpl.PrepareExec(contextWith("", map[VariableName]string{VariableFile: "/repo/a.go"}))
	require.NoError(t, err)

	assert.Equal(t, SpawnInTerminal{
		ID:                  "go-test",
		Label:               "test",
		Command:             "go",
		Args:                []string{"test", "./..."},
		Env:                 map[string]string{"GOFLAGS": "-count=1", "TASKDECK_FILE": "/repo/a.go"},
		UseNewTerminal:      true,
		AllowConcurrentRuns: true,
		Reveal:              RevealNever,
	}, spawn)

	// The spawn owns its collections.
	spawn.Args[0] = "vet"
	spawn.Env["GOFLAGS"] = ""
	again, err := tmpl.PrepareExec(TaskContext{})
	require.NoError(t, err)
	assert.Equal(t, "test", again.Args[0])
	assert.Equal(t, "-count=1", again.Env["GOFLAGS"])
}

func TestOneshot(t *testing.T) {
	tmpl := Oneshot("make test")
	assert.Equal(t, TaskID("make test"), tmpl.ID())
	assert.Equal(t, "make test", tmpl.Name())

	def := tmpl.Definition()
	assert.Equal(t, "make test", def.Label)
	assert.Equal(t, "make test", def.Command)
	assert.Empty(t, def.Args)
	assert.Equal(t, RevealAlways, def.Reveal)

	spawn, err := tmpl.PrepareExec(TaskContext{})
	require.NoError(t, err)
	assert.Equal(t, TaskID("make test"), spawn.ID)
	assert.Equal(t, "make test", spawn.Command)
}

func TestTemplate_IsImmutable(t *testing.T) {
	def := NewDefinition("t", "ls")
	def.Args = []string{"-l"}
	tmpl := NewTemplate("t", def)

	def.Args[0] = "-a"
	got := tmpl.Definition()
	assert.Equal(t, []string{"-l"}, got.Args)

	got.Args[0] = "-R"
	assert.Equal(t, []string{"-l"}, tmpl.Definition().Args)
}
