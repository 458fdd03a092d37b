package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/taskdeck/internal/handoff"
	"github.com/crystaldolphin/taskdeck/internal/task"
)

var (
	prepFile         string
	prepRow          string
	prepColumn       string
	prepSymbol       string
	prepSelectedText string
	prepCwd          string
	prepVars         []string
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <task id or label>",
	Short: "Resolve a task into a spawn instruction",
	Long: `Resolve a task against the given editor state and print the resulting
spawn instruction as JSON. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrepare,
}

var oneshotCmd = &cobra.Command{
	Use:   "oneshot <command line>",
	Short: "Turn an ad-hoc command line into a spawn instruction",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOneshot,
}

func init() {
	for _, c := range []*cobra.Command{prepareCmd, oneshotCmd} {
		c.Flags().StringVar(&prepFile, "file", "", "Current file (TASKDECK_FILE)")
		c.Flags().StringVar(&prepRow, "row", "", "Cursor row (TASKDECK_ROW)")
		c.Flags().StringVar(&prepColumn, "column", "", "Cursor column (TASKDECK_COLUMN)")
		c.Flags().StringVar(&prepSymbol, "symbol", "", "Symbol under the cursor (TASKDECK_SYMBOL)")
		c.Flags().StringVar(&prepSelectedText, "selected-text", "", "Selected text (TASKDECK_SELECTED_TEXT)")
		c.Flags().StringVar(&prepCwd, "cwd", "", "Working directory when the task sets none")
		c.Flags().StringArrayVar(&prepVars, "var", nil, "Extra variable as NAME=VALUE (repeatable)")
	}
}

func runPrepare(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	payload, err := contextPayload()
	if err != nil {
		return err
	}

	sched := c.Scheduler()
	id, err := resolveTaskID(sched.Snapshot().Tasks(), args[0])
	if err != nil {
		return err
	}
	resp := sched.Process(cmd.Context(), handoff.Request{
		Type:    handoff.TypePrepare,
		TaskID:  id,
		Context: payload,
		DryRun:  true,
	})
	return printSpawn(resp)
}

func runOneshot(cmd *cobra.Command, args []string) error {
	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	payload, err := contextPayload()
	if err != nil {
		return err
	}
	resp := c.Scheduler().Process(cmd.Context(), handoff.Request{
		Type:    handoff.TypeOneshot,
		Prompt:  strings.Join(args, " "),
		Context: payload,
		DryRun:  true,
	})
	return printSpawn(resp)
}

// resolveTaskID accepts an exact id or a label shared by exactly one task.
func resolveTaskID(tasks []task.Task, arg string) (task.TaskID, error) {
	var byLabel []task.TaskID
	for _, t := range tasks {
		if t.ID() == task.TaskID(arg) {
			return t.ID(), nil
		}
		if t.Name() == arg {
			byLabel = append(byLabel, t.ID())
		}
	}
	switch len(byLabel) {
	case 0:
		return "", fmt.Errorf("no task with id or label %q", arg)
	case 1:
		return byLabel[0], nil
	default:
		return "", fmt.Errorf("label %q is ambiguous, use one of the ids: %v", arg, byLabel)
	}
}

func contextPayload() (*handoff.ContextPayload, error) {
	vars := map[string]string{}
	for name, value := range map[task.VariableName]string{
		task.VariableFile:         prepFile,
		task.VariableRow:          prepRow,
		task.VariableColumn:       prepColumn,
		task.VariableSymbol:       prepSymbol,
		task.VariableSelectedText: prepSelectedText,
	} {
		if value != "" {
			vars[name.EnvKey()] = value
		}
	}
	for _, kv := range prepVars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--var %q: want NAME=VALUE", kv)
		}
		vars[name] = value
	}
	return &handoff.ContextPayload{Cwd: prepCwd, Variables: vars}, nil
}

func printSpawn(resp handoff.Response) error {
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp.Spawn)
}
