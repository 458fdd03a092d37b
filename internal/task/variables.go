package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// EnvPrefix is the reserved namespace shared by every variable-derived
// environment key.
const EnvPrefix = "TASKDECK_"

var (
	// ErrEmptyVariableName is returned when a custom variable is given no name.
	ErrEmptyVariableName = errors.New("custom variable name must not be empty")
	// ErrReservedVariableName is returned for custom names that would render
	// to the same environment key or alias as a built-in variable.
	ErrReservedVariableName = errors.New("custom variable name is reserved")
	// ErrInvalidVariableName is returned for custom names that cannot be
	// referenced as ${NAME}.
	ErrInvalidVariableName = errors.New("custom variable name must not contain ':' or '}'")
	// ErrConflictingVariable is returned when two keys of one variable map
	// name the same variable with different values.
	ErrConflictingVariable = errors.New("conflicting values for variable")
)

type variableKind uint8

const (
	kindCustom variableKind = iota
	kindFile
	kindWorktreeRoot
	kindSymbol
	kindRow
	kindColumn
	kindSelectedText
)

// VariableName identifies a value available to tasks at preparation time.
// It is comparable and can be used as a map key.
type VariableName struct {
	kind   variableKind
	custom string
}

var (
	// VariableFile is the absolute path of the currently opened file.
	VariableFile = VariableName{kind: kindFile}
	// VariableWorktreeRoot is the absolute path of the worktree containing the file.
	VariableWorktreeRoot = VariableName{kind: kindWorktreeRoot}
	// VariableSymbol is the symbol text around the latest cursor/selection position.
	VariableSymbol = VariableName{kind: kindSymbol}
	// VariableRow is the row of the latest cursor/selection position.
	VariableRow = VariableName{kind: kindRow}
	// VariableColumn is the column of the latest cursor/selection position.
	VariableColumn = VariableName{kind: kindColumn}
	// VariableSelectedText is the text of the latest selection.
	VariableSelectedText = VariableName{kind: kindSelectedText}
)

// BuiltinVariables lists the closed set of variables, in declaration order.
var BuiltinVariables = []VariableName{
	VariableFile,
	VariableWorktreeRoot,
	VariableSymbol,
	VariableRow,
	VariableColumn,
	VariableSelectedText,
}

var builtinNames = map[variableKind][2]string{
	kindFile:         {"File", "FILE"},
	kindWorktreeRoot: {"WorktreeRoot", "WORKTREE_ROOT"},
	kindSymbol:       {"Symbol", "SYMBOL"},
	kindRow:          {"Row", "ROW"},
	kindColumn:       {"Column", "COLUMN"},
	kindSelectedText: {"SelectedText", "SELECTED_TEXT"},
}

// CustomVariable returns a variable provided by a plugin or other external
// source. The name is used verbatim after the reserved prefix. Names of
// built-ins, in either spelling ("Row", "ROW"), are reserved.
func CustomVariable(name string) (VariableName, error) {
	if name == "" {
		return VariableName{}, ErrEmptyVariableName
	}
	if strings.ContainsAny(name, ":}") {
		return VariableName{}, fmt.Errorf("%w: %q", ErrInvalidVariableName, name)
	}
	if _, ok := builtinFor(name); ok {
		return VariableName{}, fmt.Errorf("%w: %q", ErrReservedVariableName, name)
	}
	return VariableName{kind: kindCustom, custom: name}, nil
}

// builtinFor matches the short name ("Row") or the env key suffix ("ROW")
// of a built-in variable.
func builtinFor(s string) (VariableName, bool) {
	for _, b := range BuiltinVariables {
		names := builtinNames[b.kind]
		if s == names[0] || s == names[1] {
			return b, true
		}
	}
	return VariableName{}, false
}

// MustCustomVariable is like CustomVariable but panics on an invalid name.
func MustCustomVariable(name string) VariableName {
	v, err := CustomVariable(name)
	if err != nil {
		panic(err)
	}
	return v
}

// IsCustom reports whether v is a custom variable.
func (v VariableName) IsCustom() bool { return v.kind == kindCustom }

// Name returns the short name of the variable: "WorktreeRoot" for built-ins,
// the raw name for custom ones.
func (v VariableName) Name() string {
	if v.kind == kindCustom {
		return v.custom
	}
	return builtinNames[v.kind][0]
}

// EnvKey renders the variable as an environment variable name in the
// reserved namespace, e.g. TASKDECK_WORKTREE_ROOT.
func (v VariableName) EnvKey() string {
	if v.kind == kindCustom {
		return EnvPrefix + v.custom
	}
	return EnvPrefix + builtinNames[v.kind][1]
}

// TemplateValue renders a reference to the variable for use in templates.
// Custom variables are wrapped in braces so that whitespace in their names
// does not break substitution.
func (v VariableName) TemplateValue() string {
	if v.kind == kindCustom {
		return "${" + v.EnvKey() + "}"
	}
	return "$" + v.EnvKey()
}

func (v VariableName) String() string { return v.EnvKey() }

// ParseVariableName maps a short name ("Row"), an env key suffix ("ROW") or
// an environment key ("TASKDECK_ROW") back to a built-in variable. Anything
// else becomes a custom variable, with the reserved prefix stripped when
// present.
func ParseVariableName(s string) (VariableName, error) {
	if b, ok := builtinFor(s); ok {
		return b, nil
	}
	if rest, ok := strings.CutPrefix(s, EnvPrefix); ok && rest != "" {
		if b, ok := builtinFor(rest); ok {
			return b, nil
		}
		s = rest
	}
	return CustomVariable(s)
}

// ParseTaskVariables builds a container from loosely named keys, as accepted
// by ParseVariableName. Keys naming the same variable must agree on the
// value.
func ParseTaskVariables(pairs map[string]string) (TaskVariables, error) {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tv TaskVariables
	seen := make(map[VariableName]string, len(keys))
	for _, k := range keys {
		name, err := ParseVariableName(k)
		if err != nil {
			return TaskVariables{}, fmt.Errorf("variable %q: %w", k, err)
		}
		if prev, ok := seen[name]; ok && pairs[prev] != pairs[k] {
			return TaskVariables{}, fmt.Errorf("%w %s: %q and %q differ", ErrConflictingVariable, name, prev, k)
		}
		seen[name] = k
		tv.Insert(name, pairs[k])
	}
	return tv, nil
}

// TaskVariables holds the values describing the editor state at the moment a
// task is requested. The zero value is ready to use.
type TaskVariables struct {
	vars map[VariableName]string
}

// NewTaskVariables builds a container from name/value pairs; later pairs win.
func NewTaskVariables(pairs map[VariableName]string) TaskVariables {
	tv := TaskVariables{vars: make(map[VariableName]string, len(pairs))}
	for k, v := range pairs {
		tv.vars[k] = v
	}
	return tv
}

// Insert stores value under name. When name was already present the old
// value is returned with ok set to true.
func (tv *TaskVariables) Insert(name VariableName, value string) (prev string, ok bool) {
	if tv.vars == nil {
		tv.vars = make(map[VariableName]string)
	}
	prev, ok = tv.vars[name]
	tv.vars[name] = value
	return prev, ok
}

// Extend merges other into tv; values from other win on collision.
func (tv *TaskVariables) Extend(other TaskVariables) {
	for k, v := range other.vars {
		tv.Insert(k, v)
	}
}

// Get returns the value stored for name.
func (tv TaskVariables) Get(name VariableName) (string, bool) {
	v, ok := tv.vars[name]
	return v, ok
}

// Len returns the number of stored variables.
func (tv TaskVariables) Len() int { return len(tv.vars) }

// Names returns the stored variable names sorted by environment key.
func (tv TaskVariables) Names() []VariableName {
	names := make([]VariableName, 0, len(tv.vars))
	for k := range tv.vars {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].EnvKey() < names[j].EnvKey() })
	return names
}

// Clone returns an independent copy.
func (tv TaskVariables) Clone() TaskVariables {
	return NewTaskVariables(tv.vars)
}

// Equal reports whether both containers hold the same pairs.
func (tv TaskVariables) Equal(other TaskVariables) bool {
	if len(tv.vars) != len(other.vars) {
		return false
	}
	for k, v := range tv.vars {
		if ov, ok := other.vars[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// EnvVariables converts the container into environment variables keyed by
// EnvKey.
func (tv TaskVariables) EnvVariables() map[string]string {
	env := make(map[string]string, len(tv.vars))
	for k, v := range tv.vars {
		env[k.EnvKey()] = v
	}
	return env
}

// lookupTable is the substitution table: environment keys plus short-name
// aliases. Environment keys win when an alias collides with one.
func (tv TaskVariables) lookupTable() map[string]string {
	table := make(map[string]string, 2*len(tv.vars))
	for k, v := range tv.vars {
		table[k.Name()] = v
	}
	for k, v := range tv.vars {
		table[k.EnvKey()] = v
	}
	return table
}

// TaskContext is the runtime snapshot supplied when a task is prepared.
type TaskContext struct {
	// Cwd is the directory to run in when the task does not set its own.
	// Empty means no override.
	Cwd string
	// Variables describe the editor state at request time.
	Variables TaskVariables
}
