// Package task holds the task model: variables, definitions, templates and
// the preparation of spawn instructions from them.
//
// A TaskTemplate is immutable configuration data; Prepare turns it into a
// SpawnInTerminal for one scheduling request without touching the file
// system or any shared state.
package task

// TaskID identifies a task. Reruns and terminal tabs are keyed on it.
type TaskID string

// Task is a short-lived recipe whose purpose is to get spawned.
type Task interface {
	// ID is the unique identifier of the task.
	ID() TaskID
	// Name is the human readable name shown in task lists.
	Name() string
	// Cwd is the working directory template, empty when unset.
	Cwd() string
	// PrepareExec resolves the task against cx.
	PrepareExec(cx TaskContext) (SpawnInTerminal, error)
}

// TaskTemplate pairs an identifier with a Definition.
type TaskTemplate struct {
	id  TaskID
	def Definition
}

var _ Task = TaskTemplate{}

// NewTemplate builds a template holding a private copy of def.
func NewTemplate(id TaskID, def Definition) TaskTemplate {
	return TaskTemplate{id: id, def: def.Clone()}
}

// Oneshot builds a template straight from free-text input: the id, the label
// and the command are all set to prompt.
func Oneshot(prompt string) TaskTemplate {
	return NewTemplate(TaskID(prompt), NewDefinition(prompt, prompt))
}

func (t TaskTemplate) ID() TaskID   { return t.id }
func (t TaskTemplate) Name() string { return t.def.Label }
func (t TaskTemplate) Cwd() string  { return t.def.Cwd }

// Definition returns a copy of the template's definition.
func (t TaskTemplate) Definition() Definition { return t.def.Clone() }

// WithID returns a copy of t under a different identifier.
func (t TaskTemplate) WithID(id TaskID) TaskTemplate {
	return TaskTemplate{id: id, def: t.def}
}

func (t TaskTemplate) PrepareExec(cx TaskContext) (SpawnInTerminal, error) {
	return Prepare(t, cx)
}
