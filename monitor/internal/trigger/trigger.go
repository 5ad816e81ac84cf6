// Package trigger starts monitoring runs on a cron schedule.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
)

// RunFunc starts one run. *runner.Runner.Execute satisfies it.
type RunFunc func(ctx context.Context, trigger string) (*runner.Execution, error)

// Config configures a Schedule.
type Config struct {
	// Spec is a standard 5-field cron expression, optionally with seconds,
	// or a descriptor such as "@hourly" or "@every 30m".
	Spec string
	Run  RunFunc
	// Timeout bounds one run. Zero means no limit.
	Timeout  time.Duration
	Location *time.Location
	Logger   *slog.Logger
}

// Schedule fires Run on every tick. A tick that lands while a run is
// active is skipped.
type Schedule struct {
	cfg  Config
	c    *cron.Cron
	mu   sync.Mutex
	base context.Context
	stop context.CancelFunc
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the spec. The schedule does nothing until Start.
func New(cfg Config) (*Schedule, error) {
	if cfg.Run == nil {
		return nil, errors.New("trigger: run func is required")
	}
	if _, err := parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("trigger: parse %q: %w", cfg.Spec, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Schedule{cfg: cfg}
	s.c = cron.New(cron.WithParser(parser), cron.WithLocation(cfg.Location))
	if _, err := s.c.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("trigger: add: %w", err)
	}
	return s, nil
}

// Start begins firing. Runs receive a context derived from ctx.
func (s *Schedule) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.base, s.stop = context.WithCancel(ctx)
	s.c.Start()
	s.cfg.Logger.Info("trigger: schedule started", "spec", s.cfg.Spec, "tz", s.cfg.Location.String())
}

// Stop cancels an in-flight run and waits for it to return.
func (s *Schedule) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-s.c.Stop().Done()
	s.cfg.Logger.Info("trigger: schedule stopped")
}

// Next returns the next fire time, or the zero time before Start.
func (s *Schedule) Next() time.Time {
	for _, e := range s.c.Entries() {
		return e.Next
	}
	return time.Time{}
}

func (s *Schedule) tick() {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	exec, err := s.cfg.Run(runner.WithTrigger(ctx, runner.TriggerSchedule), runner.TriggerSchedule)
	switch {
	case errors.Is(err, runner.ErrRunInProgress):
		s.cfg.Logger.Info("trigger: run in progress, tick skipped")
	case err != nil:
		s.cfg.Logger.Error("trigger: scheduled run failed", "error", err)
	default:
		s.cfg.Logger.Info("trigger: scheduled run done",
			"run_id", exec.ID, "total", len(exec.Results), "changed", exec.Changed(), "failed", exec.Failed())
	}
}
