package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/taskdeck/internal/handoff"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tasks available in the worktree",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the response as JSON")
}

func runList(cmd *cobra.Command, _ []string) error {
	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	resp := c.Scheduler().Process(cmd.Context(), handoff.Request{Type: handoff.TypeList})

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Tasks) == 0 {
		fmt.Println("No tasks.")
	} else {
		fmt.Printf("%-40s %-24s %-8s %s\n", "ID", "Label", "Kind", "Source")
		fmt.Println(repeatStr("-", 90))
		for _, t := range resp.Tasks {
			fmt.Printf("%-40s %-24s %-8s %s\n", truncStr(string(t.ID), 39), truncStr(t.Label, 23), t.Kind, t.Source)
		}
	}
	for _, d := range resp.Diagnostics {
		fmt.Fprintf(os.Stderr, "✗ %s: %s\n", d.Source, d.Error)
	}
	return nil
}

func repeatStr(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for range n {
		out = append(out, s...)
	}
	return string(out)
}

func truncStr(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
