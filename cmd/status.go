package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/taskdeck/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show taskdeck status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = config.ConfigPath()
	}

	fmt.Printf("%s taskdeck Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	c, err := openContainer(cmd.Context())
	if err != nil {
		fmt.Printf("  (could not load workspace: %v)\n", err)
		return nil
	}
	cfg := c.Config()

	fmt.Printf("Root:      %s\n", c.Workspace().Root())
	fmt.Printf("Serve:     %s\n", cfg.Serve.Addr())
	fmt.Printf("Oneshot:   %s duplicates\n\n", cfg.Oneshot.DuplicatePolicy)

	snap := c.Registry().Snapshot()
	counts := make(map[string]int)
	for _, e := range snap.Entries {
		counts[e.Source]++
	}

	fmt.Println("Sources:")
	sources := c.Workspace().Sources()
	if len(sources) == 0 {
		fmt.Println("  (none found)")
	}
	for _, src := range sources {
		mark := "✓"
		if !src.Loaded() {
			mark = "✗"
		}
		fmt.Printf("  %-40s %-7s %s %d tasks\n", truncStr(src.Name(), 39), src.Kind(), mark, counts[src.Name()])
	}

	if len(snap.Diagnostics) > 0 {
		fmt.Println("\nDiagnostics:")
		for _, d := range snap.Diagnostics {
			fmt.Printf("  ✗ %s: %v\n", d.Source, d.Err)
		}
	}
	return nil
}
