package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

// NewVSCodeSource returns a source translating a VS Code tasks.json file.
// Tasks that cannot be expressed (dependsOn chains, unknown types) are
// reported one by one; the rest of the file is still scheduled.
func NewVSCodeSource(name string, fsys fs.FS, filePath string) *FileSource {
	return newFileSource(name, KindVSCode, fsys, filePath, decodeVSCode)
}

type vsCodeTaskFile struct {
	Version string            `json:"version"`
	Tasks   []json.RawMessage `json:"tasks"`
}

type vsCodeOptions struct {
	Cwd string            `json:"cwd"`
	Env map[string]string `json:"env"`
}

type vsCodeTask struct {
	Label     string          `json:"label"`
	Type      string          `json:"type"`
	Command   string          `json:"command"`
	Args      []string        `json:"args"`
	Script    string          `json:"script"`
	Task      string          `json:"task"`
	DependsOn json.RawMessage `json:"dependsOn"`
	Options   *vsCodeOptions  `json:"options"`
}

// vsCodeVariables maps VS Code's predefined variables onto task variables.
var vsCodeVariables = map[string]task.VariableName{
	"workspaceFolder": task.VariableWorktreeRoot,
	"file":            task.VariableFile,
	"lineNumber":      task.VariableRow,
	"selectedText":    task.VariableSelectedText,
}

func decodeVSCode(src *FileSource, data []byte) ([]entryResult, error) {
	std, err := hujson.Standardize(slices.Clone(data))
	if err != nil {
		return nil, err
	}
	var file vsCodeTaskFile
	if err := json.Unmarshal(std, &file); err != nil {
		return nil, fmt.Errorf("expected a VS Code tasks file: %w", err)
	}

	results := make([]entryResult, 0, len(file.Tasks))
	for i, raw := range file.Tasks {
		var vt vsCodeTask
		if err := json.Unmarshal(raw, &vt); err != nil {
			results = append(results, entryResult{err: src.parseError(i, labelOf(raw), err)})
			continue
		}
		def, err := vt.definition()
		if err != nil {
			results = append(results, entryResult{err: src.parseError(i, vt.Label, err)})
			continue
		}
		results = append(results, staticResult(src, i, def))
	}
	return results, nil
}

func (vt vsCodeTask) definition() (task.Definition, error) {
	if len(vt.DependsOn) > 0 {
		return task.Definition{}, errors.New("unsupported dependsOn key")
	}

	var command string
	var args []string
	switch vt.Type {
	case "shell", "process":
		command, args = vt.Command, vt.Args
	case "npm":
		command, args = "npm", []string{"run", vt.Script}
	case "gulp":
		command, args = "gulp", []string{vt.Task}
	case "":
		return task.Definition{}, errors.New("missing type field")
	default:
		return task.Definition{}, fmt.Errorf("unsupported task type %q", vt.Type)
	}

	// Only command, args and options support variable substitution in VS Code.
	command, err := replaceVSCodeVariables(command)
	if err != nil {
		return task.Definition{}, err
	}
	def := task.NewDefinition(vt.Label, command)
	for _, a := range args {
		a, err := replaceVSCodeVariables(a)
		if err != nil {
			return task.Definition{}, err
		}
		def.Args = append(def.Args, a)
	}
	if vt.Options != nil {
		if vt.Options.Cwd != "" {
			if def.Cwd, err = replaceVSCodeVariables(vt.Options.Cwd); err != nil {
				return task.Definition{}, err
			}
		}
		for k, v := range vt.Options.Env {
			def.Env[k] = v
		}
	}
	return def, nil
}

// replaceVSCodeVariables rewrites ${name} references to the matching task
// variable reference. Names without a task variable counterpart, such as
// ${env:HOME} or ${config:x}, are an error: left in place they would be read
// as ${NAME:default} at preparation time.
func replaceVSCodeVariables(s string) (string, error) {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end += start
		name := s[start+2 : end]
		v, ok := vsCodeVariables[name]
		if !ok {
			return "", fmt.Errorf("unsupported variable ${%s}", name)
		}
		b.WriteString(s[:start])
		b.WriteString("${" + v.EnvKey() + "}")
		s = s[end+1:]
	}
}
