package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/taskdeck/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and a sample tasks file",
	RunE:  runInit,
}

const sampleTasks = `// Tasks for this worktree. Comments and trailing commas are allowed.
[
  {
    "label": "echo current file",
    "command": "echo",
    "args": ["$TASKDECK_FILE"],
  },
  {
    "label": "list worktree",
    "command": "ls",
    "args": ["-la"],
    "cwd": "$TASKDECK_WORKTREE_ROOT",
    "use_new_terminal": true,
  },
]
`

func runInit(_ *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	if _, err := os.Stat(cfgPath); err == nil {
		existing, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			def := config.DefaultConfig()
			existing = &def
		}
		if err := config.Save(existing, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		cfg := config.DefaultConfig()
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	root, err := worktreeRoot()
	if err != nil {
		return err
	}
	tasksDir := filepath.Join(root, ".taskdeck")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	tasksFile := filepath.Join(tasksDir, "tasks.json")
	if _, err := os.Stat(tasksFile); os.IsNotExist(err) {
		if err := os.WriteFile(tasksFile, []byte(sampleTasks), 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Created %s\n", tasksFile)
	} else {
		fmt.Printf("  Keeping existing %s\n", tasksFile)
	}

	fmt.Printf("\n%s taskdeck is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Println("  1. List tasks:   taskdeck list")
	fmt.Println("  2. Prepare one:  taskdeck prepare \"echo current file\" --file main.go")
	fmt.Println("  3. Serve:        taskdeck serve")
	return nil
}
