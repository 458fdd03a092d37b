package source

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

var _ Source = (*FileSource)(nil)

// NewStaticSource returns a source for a tasks file in the native format.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON with
// comments and trailing commas allowed.
func NewStaticSource(name string, fsys fs.FS, filePath string) *FileSource {
	return newFileSource(name, KindStatic, fsys, filePath, decodeStatic)
}

func decodeStatic(src *FileSource, data []byte) ([]entryResult, error) {
	switch strings.ToLower(path.Ext(src.path)) {
	case ".yaml", ".yml":
		return decodeStaticYAML(src, data)
	default:
		return decodeStaticJSON(src, data)
	}
}

func decodeStaticJSON(src *FileSource, data []byte) ([]entryResult, error) {
	std, err := hujson.Standardize(slices.Clone(data))
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(std, &raw); err != nil {
		return nil, fmt.Errorf("expected an array of task definitions: %w", err)
	}

	results := make([]entryResult, 0, len(raw))
	for i, r := range raw {
		var def task.Definition
		if err := json.Unmarshal(r, &def); err != nil {
			results = append(results, entryResult{err: src.parseError(i, labelOf(r), err)})
			continue
		}
		results = append(results, staticResult(src, i, def))
	}
	return results, nil
}

func decodeStaticYAML(src *FileSource, data []byte) ([]entryResult, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("expected a list of task definitions: %w", err)
	}

	results := make([]entryResult, 0, len(nodes))
	for i := range nodes {
		var def task.Definition
		if err := nodes[i].Decode(&def); err != nil {
			results = append(results, entryResult{err: src.parseError(i, "", err)})
			continue
		}
		results = append(results, staticResult(src, i, def))
	}
	return results, nil
}

func staticResult(src *FileSource, i int, def task.Definition) entryResult {
	if err := def.Validate(); err != nil {
		return entryResult{err: src.parseError(i, def.Label, err)}
	}
	return entryResult{tmpl: task.NewTemplate(src.taskID(i, def.Label), def)}
}

// labelOf digs the label out of a malformed entry for nicer diagnostics.
func labelOf(raw json.RawMessage) string {
	var probe struct {
		Label string `json:"label"`
	}
	_ = json.Unmarshal(raw, &probe)
	return probe.Label
}
