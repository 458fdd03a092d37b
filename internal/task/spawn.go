package task

import (
	"fmt"
	"maps"
	"slices"
)

// SpawnInTerminal contains everything needed to spawn a terminal tab for a
// task. It is owned by the caller once returned.
type SpawnInTerminal struct {
	// ID drives terminal tab affinity and concurrency gating.
	ID TaskID `json:"id"`
	// Label is the human readable name of the terminal tab.
	Label string `json:"label"`
	// Command is the executable to spawn.
	Command string `json:"command"`
	// Args are the command arguments.
	Args []string `json:"args"`
	// Cwd is the resolved working directory, empty when none applies.
	Cwd string `json:"cwd,omitempty"`
	// Env overrides are appended to the terminal's environment.
	Env map[string]string `json:"env"`
	// UseNewTerminal asks for a new tab instead of reusing the task's tab.
	UseNewTerminal bool `json:"use_new_terminal"`
	// AllowConcurrentRuns allows several live instances of the same task.
	AllowConcurrentRuns bool `json:"allow_concurrent_runs"`
	// Reveal says what to do with the pane and tab after the start.
	Reveal RevealStrategy `json:"reveal"`
}

// Prepare resolves t against cx.
//
// The cwd template is substituted with the context variables; an unbound
// reference aborts preparation with a *SubstitutionError. Without a cwd
// template the context's Cwd is used.
//
// The environment starts from the definition's env and the task variables are
// applied on top, so a definition env entry whose key is in the reserved
// TASKDECK_ namespace is overwritten by the variable of the same key.
func Prepare(t TaskTemplate, cx TaskContext) (SpawnInTerminal, error) {
	def := t.def
	varEnv := cx.Variables.EnvVariables()

	cwd := cx.Cwd
	if def.Cwd != "" {
		resolved, err := Substitute(def.Cwd, cx.Variables.lookupTable())
		if err != nil {
			return SpawnInTerminal{}, fmt.Errorf("task %q: resolve cwd: %w", t.id, err)
		}
		cwd = resolved
	}

	env := make(map[string]string, len(def.Env)+len(varEnv))
	maps.Copy(env, def.Env)
	maps.Copy(env, varEnv)

	args := slices.Clone(def.Args)
	if args == nil {
		args = []string{}
	}
	reveal := def.Reveal
	if reveal == "" {
		reveal = RevealAlways
	}

	return SpawnInTerminal{
		ID:                  t.id,
		Label:               def.Label,
		Command:             def.Command,
		Args:                args,
		Cwd:                 cwd,
		Env:                 env,
		UseNewTerminal:      def.UseNewTerminal,
		AllowConcurrentRuns: def.AllowConcurrentRuns,
		Reveal:              reveal,
	}, nil
}

// Clone returns a deep copy.
func (s SpawnInTerminal) Clone() SpawnInTerminal {
	s.Args = slices.Clone(s.Args)
	s.Env = maps.Clone(s.Env)
	return s
}
