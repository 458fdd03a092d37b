// Package cmd implements the taskdeck CLI using cobra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/taskdeck/internal/config"
	"github.com/crystaldolphin/taskdeck/internal/container"
)

const version = "0.1.0"
const logo = "🗂"

var (
	configPath string
	rootDir    string
	logLevel   string
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: logo + " taskdeck: task templates for editors and terminals",
	Long: logo + ` taskdeck turns declarative task definitions into ready-to-run
spawn instructions, resolving editor variables such as the current file,
cursor position and worktree root.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ~/.taskdeck/config.json)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "Worktree root (default current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(oneshotCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level := logLevel
	if level == "" {
		if cfg, err := config.Load(configPath); err == nil {
			level = cfg.Log.Level
		}
	}
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func worktreeRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	return os.Getwd()
}

// openContainer wires the services for the current worktree and loads its
// task sources.
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := worktreeRoot()
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg, root)
	if err != nil {
		return nil, err
	}
	if _, err := c.Workspace().Scan(ctx); err != nil {
		slog.Warn("scan failed", "root", root, "err", err)
	}
	return c, nil
}
