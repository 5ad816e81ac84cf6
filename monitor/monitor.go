// Package monitor is the pricewatch service: it registers (recipient, url)
// subscriptions, runs the change-detection pipeline on demand or on a
// schedule, and exposes both over HTTP and MCP.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/hazyhaar/pricewatch/idgen"
	"github.com/hazyhaar/pricewatch/monitor/internal/archive"
	"github.com/hazyhaar/pricewatch/monitor/internal/events"
	"github.com/hazyhaar/pricewatch/monitor/internal/metrics"
	"github.com/hazyhaar/pricewatch/monitor/internal/notify"
	"github.com/hazyhaar/pricewatch/monitor/internal/render"
	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
	"github.com/hazyhaar/pricewatch/monitor/internal/store"
	"github.com/hazyhaar/pricewatch/monitor/internal/trigger"
	"github.com/hazyhaar/pricewatch/safeurl"
)

// Service wires the store, the runner and its observers.
type Service struct {
	store    *store.Store
	runner   *runner.Runner
	metrics  *metrics.Metrics
	events   *events.Publisher
	schedule *trigger.Schedule
	renderer io.Closer // set when the renderer holds a connection
	logger   *slog.Logger
	config   *Config

	newID        idgen.Generator
	urlValidator func(ctx context.Context, rawURL string) error
}

// Trigger labels recorded with each run.
const (
	TriggerAPI      = runner.TriggerAPI
	TriggerMCP      = runner.TriggerMCP
	TriggerSchedule = runner.TriggerSchedule
	TriggerCLI      = runner.TriggerCLI
)

// WithTrigger labels a RunNow started with ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return runner.WithTrigger(ctx, trigger)
}

// RunReport is the response of a triggered run.
type RunReport struct {
	OK      bool            `json:"ok"`
	RunID   string          `json:"run_id"`
	Results []runner.Result `json:"results"`
}

// RunDetail is a recorded run with its per-target results.
type RunDetail struct {
	*store.Run
	Results []store.RunResult `json:"results"`
}

// Option configures a Service.
type Option func(*options)

type options struct {
	renderer     render.Renderer
	notifier     notify.Notifier
	newID        idgen.Generator
	newRunID     idgen.Generator
	urlValidator func(context.Context, string) error
	observers    []runner.Observer
}

// WithRenderer replaces the renderer built from Config.Render.
func WithRenderer(r render.Renderer) Option { return func(o *options) { o.renderer = r } }

// WithNotifier replaces the notifier built from Config.Notify. It is not
// throttled.
func WithNotifier(n notify.Notifier) Option { return func(o *options) { o.notifier = n } }

// WithIDGenerator sets the target id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(o *options) { o.newID = g } }

// WithRunIDGenerator sets the run id generator.
func WithRunIDGenerator(g idgen.Generator) Option { return func(o *options) { o.newRunID = g } }

// WithURLValidator replaces the SSRF check applied on subscribe.
func WithURLValidator(fn func(context.Context, string) error) Option {
	return func(o *options) { o.urlValidator = fn }
}

// WithObserver adds a runner observer.
func WithObserver(obs runner.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// New creates the service on db, applying the schema.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{newID: idgen.Default, urlValidator: safeurl.ValidateURLContext}
	for _, opt := range opts {
		opt(&o)
	}
	if o.urlValidator == nil {
		o.urlValidator = safeurl.ValidateURLContext
	}
	if o.newID == nil {
		o.newID = idgen.Default
	}

	policy, err := runner.ParsePolicy(cfg.ChangePolicy)
	if err != nil {
		return nil, err
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("monitor: schema: %w", err)
	}

	svc := &Service{
		store:        store.NewStore(db),
		metrics:      metrics.New(),
		logger:       logger,
		config:       cfg,
		newID:        o.newID,
		urlValidator: o.urlValidator,
	}

	if o.renderer == nil {
		o.renderer = buildRenderer(cfg.Render, logger)
	}
	if c, ok := o.renderer.(io.Closer); ok {
		svc.renderer = c
	}
	if o.notifier == nil {
		if o.notifier, err = buildNotifier(cfg.Notify, logger); err != nil {
			return nil, err
		}
	}

	observers := []runner.Observer{svc.metrics}
	if cfg.ArchiveDir != "" {
		observers = append(observers, archive.New(cfg.ArchiveDir, archive.WithLogger(logger)))
	}
	if cfg.Events.URL != "" {
		svc.events, err = events.Connect(cfg.Events.URL, cfg.Events.JetStream, logger)
		if err != nil {
			return nil, err
		}
		observers = append(observers, svc.events)
	}
	observers = append(observers, o.observers...)

	svc.runner, err = runner.New(runner.Config{
		Store:     svc.store,
		Renderer:  o.renderer,
		Notifier:  o.notifier,
		RunLog:    svc.store,
		Observers: observers,
		Workers:   cfg.Workers,
		Policy:    policy,
		NewRunID:  o.newRunID,
		Logger:    logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}

	if cfg.Schedule != "" {
		svc.schedule, err = trigger.New(trigger.Config{
			Spec:    cfg.Schedule,
			Run:     svc.runner.Execute,
			Timeout: cfg.ScheduleTimeout,
			Logger:  logger,
		})
		if err != nil {
			svc.Close()
			return nil, err
		}
	}

	logger.Info("monitor: service ready",
		"policy", policy, "render", cfg.Render.Mode, "workers", cfg.Workers,
		"schedule", cfg.Schedule, "archive", cfg.ArchiveDir != "", "events", svc.events != nil)
	return svc, nil
}

func buildRenderer(cfg RenderConfig, logger *slog.Logger) render.Renderer {
	browser := func() render.Renderer {
		return render.NewRod(render.RodConfig{
			RemoteURL:        cfg.RemoteURL,
			NavTimeout:       cfg.NavTimeout,
			Settle:           cfg.Settle,
			ResourceBlocking: cfg.BlockResources,
			NoStealth:        cfg.NoStealth,
			Bin:              cfg.ChromeBin,
			Logger:           logger,
		})
	}
	static := func() render.Renderer {
		return render.NewHTTP(render.WithUserAgent(cfg.UserAgent), render.WithLogger(logger))
	}
	switch cfg.Mode {
	case RenderHTTP:
		return static()
	case RenderAuto:
		return &render.Auto{Static: static(), Browser: browser(), Logger: logger}
	}
	return browser()
}

func buildNotifier(cfg NotifyConfig, logger *slog.Logger) (notify.Notifier, error) {
	var n notify.Notifier
	switch {
	case cfg.SendGridAPIKey != "":
		sg, err := notify.NewSendGrid(notify.SendGridConfig{
			APIKey:   cfg.SendGridAPIKey,
			From:     cfg.From,
			FromName: cfg.FromName,
			Timeout:  cfg.Timeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		n = sg
	case cfg.WebhookURL != "":
		if _, err := safeurl.CheckScheme(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("monitor: webhook url: %w", err)
		}
		n = notify.NewWebhook(cfg.WebhookURL, notify.WithWebhookLogger(logger))
	default:
		logger.Warn("monitor: no notifier configured, alerts go to stdout")
		n = notify.NewStdout(os.Stdout)
	}
	return notify.Throttle(n, cfg.RatePerSecond, cfg.Burst), nil
}

// Start begins the periodic schedule, if configured.
func (s *Service) Start(ctx context.Context) {
	if s.schedule != nil {
		s.schedule.Start(ctx)
	}
}

// Close stops the schedule, drains the event connection and releases the
// renderer's browser connection.
func (s *Service) Close() error {
	if s.schedule != nil {
		s.schedule.Stop()
	}
	s.events.Close()
	if s.renderer != nil {
		return s.renderer.Close()
	}
	return nil
}

// Subscribe validates and registers a new target. The target starts with
// no baseline; its first run records one without notifying.
func (s *Service) Subscribe(ctx context.Context, email, rawURL string) (*store.Target, error) {
	recipient, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	u, err := s.validateURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	t := &store.Target{ID: s.newID(), Recipient: recipient, URL: u}
	if err := s.store.InsertTarget(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("monitor: target subscribed", "target_id", t.ID, "url", t.URL)
	return t, nil
}

// RunNow executes one run over every target. The run is labelled with the
// trigger carried by ctx (runner.WithTrigger), "api" by default.
func (s *Service) RunNow(ctx context.Context) (*RunReport, error) {
	exec, err := s.runner.Execute(ctx, runner.TriggerFrom(ctx))
	if err != nil {
		return nil, err
	}
	results := exec.Results
	if results == nil {
		results = []runner.Result{}
	}
	return &RunReport{OK: true, RunID: exec.ID, Results: results}, nil
}

// ListTargets returns every target, oldest first.
func (s *Service) ListTargets(ctx context.Context) ([]*store.Target, error) {
	targets, err := s.store.ListAll(ctx)
	if targets == nil && err == nil {
		targets = []*store.Target{}
	}
	return targets, err
}

// GetTarget returns one target.
func (s *Service) GetTarget(ctx context.Context, id string) (*store.Target, error) {
	t, err := s.store.GetTarget(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	runs, err := s.store.ListRuns(ctx, limit)
	if runs == nil && err == nil {
		runs = []*store.Run{}
	}
	return runs, err
}

// GetRun returns one run with its results.
func (s *Service) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	run, err := s.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	results, err := s.store.RunResults(ctx, id)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []store.RunResult{}
	}
	return &RunDetail{Run: run, Results: results}, nil
}

// Policy returns the active change policy.
func (s *Service) Policy() runner.Policy { return s.runner.Policy() }

// MetricsHandler serves the Prometheus registry.
func (s *Service) MetricsHandler() http.Handler { return s.metrics.Handler() }
