package watch

import (
	"context"
	"fmt"
	"log/slog"

	robfigcron "github.com/robfig/cron/v3"
)

// Rescanner runs a callback on a cron schedule.
type Rescanner struct {
	spec string
	fn   func(ctx context.Context)
	cron *robfigcron.Cron
}

// NewRescanner validates spec (standard five field syntax or descriptors
// such as "@every 5m") and returns a rescanner calling fn.
func NewRescanner(spec string, fn func(ctx context.Context)) (*Rescanner, error) {
	if _, err := robfigcron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("rescan schedule %q: %w", spec, err)
	}
	return &Rescanner{
		spec: spec,
		fn:   fn,
		cron: robfigcron.New(robfigcron.WithChain(robfigcron.SkipIfStillRunning(robfigcron.DiscardLogger))),
	}, nil
}

// Start runs the schedule until ctx is cancelled, then waits for a running
// callback to return.
func (r *Rescanner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.spec, func() { r.fn(ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("rescan: started", "schedule", r.spec)

	<-ctx.Done()

	<-r.cron.Stop().Done()
	slog.Info("rescan: stopped")
	return ctx.Err()
}
