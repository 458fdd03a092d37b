package task

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// RevealStrategy says what to do with the terminal pane and tab after the
// command was started.
type RevealStrategy string

const (
	// RevealAlways shows the terminal pane, adds and focuses the task's tab.
	RevealAlways RevealStrategy = "always"
	// RevealNever keeps the current pane focus but still adds or reuses the
	// task's tab.
	RevealNever RevealStrategy = "never"
)

// RevealStrategies lists every accepted strategy, default first.
var RevealStrategies = []RevealStrategy{RevealAlways, RevealNever}

// Valid reports whether r is a known strategy.
func (r RevealStrategy) Valid() bool {
	return slices.Contains(RevealStrategies, r)
}

func (r *RevealStrategy) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("reveal: %w", err)
	}
	return r.set(s)
}

func (r *RevealStrategy) UnmarshalText(text []byte) error {
	return r.set(string(text))
}

func (r *RevealStrategy) set(s string) error {
	v := RevealStrategy(s)
	if !v.Valid() {
		return fmt.Errorf("reveal: unknown strategy %q (want one of %v)", s, RevealStrategies)
	}
	*r = v
	return nil
}

// Definition is a static task description, as written in a tasks file.
type Definition struct {
	// Label is the human readable name shown in task lists.
	Label string `json:"label" yaml:"label"`
	// Command is the executable to spawn.
	Command string `json:"command" yaml:"command"`
	// Args are passed to Command in order.
	Args []string `json:"args" yaml:"args"`
	// Env overrides are appended to the terminal's environment.
	Env map[string]string `json:"env" yaml:"env"`
	// Cwd is a template for the working directory; empty means the context's
	// directory is used.
	Cwd string `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	// UseNewTerminal spawns in a new tab instead of reusing the task's tab.
	UseNewTerminal bool `json:"use_new_terminal" yaml:"use_new_terminal"`
	// AllowConcurrentRuns allows several live instances of the same task.
	AllowConcurrentRuns bool `json:"allow_concurrent_runs" yaml:"allow_concurrent_runs"`
	// Reveal controls terminal focus after spawn.
	Reveal RevealStrategy `json:"reveal" yaml:"reveal"`
}

// NewDefinition returns a Definition with every optional field at its default.
func NewDefinition(label, command string) Definition {
	return Definition{
		Label:   label,
		Command: command,
		Args:    []string{},
		Env:     map[string]string{},
		Reveal:  RevealAlways,
	}
}

// definitionAlias strips methods so the decoders below do not recurse.
type definitionAlias Definition

func (d *Definition) UnmarshalJSON(data []byte) error {
	a := definitionAlias(NewDefinition("", ""))
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = Definition(a).normalized()
	return nil
}

func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	a := definitionAlias(NewDefinition("", ""))
	if err := value.Decode(&a); err != nil {
		return err
	}
	*d = Definition(a).normalized()
	return nil
}

func (d Definition) MarshalJSON() ([]byte, error) {
	return json.Marshal(definitionAlias(d.normalized()))
}

// normalized fills nil collections and an empty reveal with their defaults.
func (d Definition) normalized() Definition {
	if d.Args == nil {
		d.Args = []string{}
	}
	if d.Env == nil {
		d.Env = map[string]string{}
	}
	if d.Reveal == "" {
		d.Reveal = RevealAlways
	}
	return d
}

// Validate checks the required fields.
func (d Definition) Validate() error {
	if d.Label == "" {
		return fmt.Errorf("task definition: missing label")
	}
	if d.Command == "" {
		return fmt.Errorf("task definition %q: missing command", d.Label)
	}
	if d.Reveal != "" && !d.Reveal.Valid() {
		return fmt.Errorf("task definition %q: unknown reveal strategy %q", d.Label, d.Reveal)
	}
	return nil
}

// Equal compares two definitions, treating nil and empty collections alike
// and an empty reveal as RevealAlways.
func (d Definition) Equal(o Definition) bool {
	a, b := d.normalized(), o.normalized()
	return a.Label == b.Label &&
		a.Command == b.Command &&
		slices.Equal(a.Args, b.Args) &&
		maps.Equal(a.Env, b.Env) &&
		a.Cwd == b.Cwd &&
		a.UseNewTerminal == b.UseNewTerminal &&
		a.AllowConcurrentRuns == b.AllowConcurrentRuns &&
		a.Reveal == b.Reveal
}

// Clone returns a deep copy.
func (d Definition) Clone() Definition {
	d = d.normalized()
	d.Args = slices.Clone(d.Args)
	d.Env = maps.Clone(d.Env)
	return d
}

// Definitions is a group of tasks defined in one file.
type Definitions []Definition

// MarshalDefinitions renders defs in the tasks file format.
func MarshalDefinitions(defs Definitions) ([]byte, error) {
	if defs == nil {
		defs = Definitions{}
	}
	return json.MarshalIndent(defs, "", "  ")
}
