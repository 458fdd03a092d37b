// Package container wires core taskdeck services using go.uber.org/dig.
package container

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/dig"

	"github.com/crystaldolphin/taskdeck/internal/config"
	"github.com/crystaldolphin/taskdeck/internal/handoff"
	"github.com/crystaldolphin/taskdeck/internal/metrics"
	"github.com/crystaldolphin/taskdeck/internal/rerun"
	"github.com/crystaldolphin/taskdeck/internal/source"
	"github.com/crystaldolphin/taskdeck/internal/watch"
	"github.com/crystaldolphin/taskdeck/internal/workspace"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	d *dig.Container

	cfg       *config.Config
	ws        *workspace.Workspace
	metrics   *metrics.Metrics
	scheduler *handoff.Scheduler
}

func (c *Container) Config() *config.Config          { return c.cfg }
func (c *Container) Workspace() *workspace.Workspace { return c.ws }
func (c *Container) Registry() *source.Registry      { return c.ws.Registry() }
func (c *Container) Metrics() *metrics.Metrics       { return c.metrics }
func (c *Container) Scheduler() *handoff.Scheduler   { return c.scheduler }
func (c *Container) Tracker() *rerun.Tracker         { return c.scheduler.Tracker() }

// rootDir is a named string type so dig can tell the worktree root apart
// from other strings.
type rootDir string

// New builds and wires all core services from cfg for the worktree at root.
// Sources are registered but not loaded; call Workspace().Scan for that.
func New(cfg *config.Config, root string) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() rootDir { return rootDir(root) }); err != nil {
		return nil, err
	}
	if err := d.Provide(metrics.New); err != nil {
		return nil, err
	}
	if err := d.Provide(newOneshotSource); err != nil {
		return nil, err
	}
	if err := d.Provide(newRegistry); err != nil {
		return nil, err
	}
	if err := d.Provide(newWorkspace); err != nil {
		return nil, err
	}
	if err := d.Provide(rerun.NewTracker); err != nil {
		return nil, err
	}
	if err := d.Provide(newScheduler); err != nil {
		return nil, err
	}
	if err := d.Provide(newServer); err != nil {
		return nil, err
	}
	if err := d.Provide(newWatcher); err != nil {
		return nil, err
	}
	if err := d.Provide(newRescanner); err != nil {
		return nil, err
	}

	result := &Container{d: d}
	err := d.Invoke(func(
		cfg *config.Config,
		ws *workspace.Workspace,
		m *metrics.Metrics,
		sched *handoff.Scheduler,
	) {
		result.cfg = cfg
		result.ws = ws
		result.metrics = m
		result.scheduler = sched
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Server resolves the handoff server.
func (c *Container) Server() (*handoff.Server, error) {
	var srv *handoff.Server
	err := c.d.Invoke(func(s *handoff.Server) { srv = s })
	return srv, err
}

// Watcher resolves the file watcher. It is created on first use since it
// holds an inotify descriptor.
func (c *Container) Watcher() (*watch.Watcher, error) {
	var w *watch.Watcher
	err := c.d.Invoke(func(x *watch.Watcher) { w = x })
	return w, err
}

// Rescanner resolves the periodic rescan, or nil when it is disabled.
func (c *Container) Rescanner() (*watch.Rescanner, error) {
	var r *watch.Rescanner
	err := c.d.Invoke(func(x *watch.Rescanner) { r = x })
	return r, err
}

func newOneshotSource(cfg *config.Config) (*source.OneshotSource, error) {
	policy, err := source.ParseDuplicatePolicy(cfg.Oneshot.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	return source.NewOneshotSource(policy), nil
}

func newRegistry(oneshot *source.OneshotSource) (*source.Registry, error) {
	return source.NewRegistry(oneshot)
}

func newWorkspace(cfg *config.Config, root rootDir, reg *source.Registry, m *metrics.Metrics) (*workspace.Workspace, error) {
	return workspace.New(workspace.Options{
		Root:            string(root),
		TasksPatterns:   cfg.Sources.TasksFiles,
		VSCodePatterns:  cfg.Sources.VSCodeFiles,
		GlobalTasksFile: cfg.GlobalTasksPath(),
		OnRefresh:       m.ObserveRefresh,
	}, reg)
}

func newScheduler(cfg *config.Config, ws *workspace.Workspace, tracker *rerun.Tracker, m *metrics.Metrics) (*handoff.Scheduler, error) {
	defaults, err := cfg.TaskVariables()
	if err != nil {
		return nil, err
	}
	return handoff.NewScheduler(ws, tracker, m, defaults), nil
}

func newServer(cfg *config.Config, sched *handoff.Scheduler, m *metrics.Metrics) *handoff.Server {
	return handoff.NewServer(cfg.Serve.Addr(), sched, m)
}

func newWatcher(cfg *config.Config, ws *workspace.Workspace) (*watch.Watcher, error) {
	return watch.New(watch.Options{
		Root:     ws.Root(),
		Files:    ws.WatchedFiles(),
		Match:    ws.Match,
		Delay:    cfg.Watch.GetDebounceDelay(),
		OnChange: ws.Changed,
	})
}

func newRescanner(cfg *config.Config, ws *workspace.Workspace) (*watch.Rescanner, error) {
	if cfg.Watch.RescanSchedule == "" {
		return nil, nil
	}
	return watch.NewRescanner(cfg.Watch.RescanSchedule, func(ctx context.Context) {
		if _, err := ws.Scan(ctx); err != nil {
			slog.Warn("rescan: scan failed", "err", err)
		}
	})
}
