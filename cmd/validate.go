package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/taskdeck/internal/task"
)

var validateCmd = &cobra.Command{
	Use:   "validate <tasks file>...",
	Short: "Check tasks files against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(_ *cobra.Command, args []string) error {
	failed := 0
	for _, p := range args {
		if err := validateFile(p); err != nil {
			failed++
			fmt.Printf("✗ %s\n  %v\n", p, err)
			continue
		}
		fmt.Printf("✓ %s\n", p)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files invalid", failed, len(args))
	}
	return nil
}

func validateFile(p string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		if doc == nil {
			return errors.New("empty document")
		}
		// Round-trip through JSON so the validator sees plain JSON types.
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return task.ValidateDefinitions(raw)
	default:
		return task.ValidateDefinitions(data)
	}
}
