// Package config defines the configuration schema for taskdeck.
//
// JSON keys use camelCase. Every field has a default, so a partial file only
// needs the keys it changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/task"
)

// SourcesConfig says where task definitions are looked up.
type SourcesConfig struct {
	// TasksFiles are glob patterns, relative to the worktree root, matching
	// native tasks files (JSON or YAML).
	TasksFiles []string `json:"tasksFiles"`
	// VSCodeFiles are glob patterns matching VS Code tasks.json files.
	VSCodeFiles []string `json:"vscodeFiles"`
	// GlobalTasksFile is a tasks file shared by every worktree. "~" expands
	// to the home directory; empty disables it.
	GlobalTasksFile string `json:"globalTasksFile"`
}

func defaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		TasksFiles:      []string{"**/.taskdeck/tasks.{json,yaml,yml}"},
		VSCodeFiles:     []string{"**/.vscode/tasks.json"},
		GlobalTasksFile: "~/.taskdeck/tasks.json",
	}
}

// OneshotConfig configures ad-hoc tasks.
type OneshotConfig struct {
	DuplicatePolicy string `json:"duplicatePolicy"` // "dedupe", "reject" or "suffix"
}

func defaultOneshotConfig() OneshotConfig {
	return OneshotConfig{DuplicatePolicy: string(source.DuplicateDedupe)}
}

// WatchConfig configures reloading of tasks files.
type WatchConfig struct {
	Enabled bool `json:"enabled"`
	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay string `json:"debounceDelay"`
	// RescanSchedule is a cron spec for re-discovering tasks files that the
	// watcher may have missed; empty disables it.
	RescanSchedule string `json:"rescanSchedule"`
}

func defaultWatchConfig() WatchConfig {
	return WatchConfig{Enabled: true, DebounceDelay: "300ms", RescanSchedule: "@every 5m"}
}

// GetDebounceDelay returns the debounce delay as a duration.
func (c WatchConfig) GetDebounceDelay() time.Duration {
	d, err := time.ParseDuration(c.DebounceDelay)
	if err != nil || d <= 0 {
		return 300 * time.Millisecond
	}
	return d
}

// ServeConfig holds handoff server settings.
type ServeConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func defaultServeConfig() ServeConfig {
	return ServeConfig{Host: "127.0.0.1", Port: 18790}
}

// Addr returns host:port.
func (c ServeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `json:"level"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "info"}
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.taskdeck/config.json.
type Config struct {
	Sources SourcesConfig `json:"sources"`
	// Variables are custom task variables added to every task context.
	// Keys are custom names, with or without the TASKDECK_ prefix.
	Variables map[string]string `json:"variables"`
	Oneshot   OneshotConfig     `json:"oneshot"`
	Watch     WatchConfig       `json:"watch"`
	Serve     ServeConfig       `json:"serve"`
	Log       LogConfig         `json:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Sources:   defaultSourcesConfig(),
		Variables: map[string]string{},
		Oneshot:   defaultOneshotConfig(),
		Watch:     defaultWatchConfig(),
		Serve:     defaultServeConfig(),
		Log:       defaultLogConfig(),
	}
}

// Validate reports values that would fail later at wiring time.
func (c *Config) Validate() error {
	if _, err := source.ParseDuplicatePolicy(c.Oneshot.DuplicatePolicy); err != nil {
		return err
	}
	if _, err := c.TaskVariables(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Serve.Port < 0 || c.Serve.Port > 65535 {
		return fmt.Errorf("serve: port %d out of range", c.Serve.Port)
	}
	return nil
}

// TaskVariables converts the configured variables. Built-in names such as
// "WorktreeRoot" are accepted too; they act as fallbacks for values the
// editor does not send.
func (c *Config) TaskVariables() (task.TaskVariables, error) {
	vars, err := task.ParseTaskVariables(c.Variables)
	if err != nil {
		return task.TaskVariables{}, fmt.Errorf("variables: %w", err)
	}
	return vars, nil
}

// GlobalTasksPath returns the global tasks file with "~" expanded, or "".
func (c *Config) GlobalTasksPath() string {
	p := c.Sources.GlobalTasksFile
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, p[1:])
	}
	return p
}

// ParseLevel maps a level name onto a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
	return l, nil
}
