package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/tailscale/hujson"
)

// ConfigPath returns the default configuration file path: ~/.taskdeck/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the taskdeck data directory: ~/.taskdeck.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskdeck"
	}
	return filepath.Join(home, ".taskdeck")
}

// Load reads and parses the config file at path.
// If path is empty, ConfigPath() is used.
// The file may contain comments and trailing commas, like tasks files do.
// On parse failure it logs a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		slog.Warn("config: failed to parse, using defaults", "path", path, "err", err)
		def := DefaultConfig()
		return &def, nil
	}
	return cfg, nil
}

// parse decodes data over DefaultConfig, so absent keys keep their default.
func parse(data []byte) (*Config, error) {
	std, err := hujson.Standardize(slices.Clone(data))
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, err
	}
	if cfg.Variables == nil {
		cfg.Variables = map[string]string{}
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON. Comments of an existing file are
// not preserved.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
