// Package runner drives one monitoring pass over every target:
// render → fingerprint → compare → diff → notify → persist, in that order
// per target, with targets processed by a bounded worker pool and each
// target's failure contained to its own Result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pricewatch/idgen"
	"github.com/hazyhaar/pricewatch/monitor/internal/diff"
	"github.com/hazyhaar/pricewatch/monitor/internal/fingerprint"
	"github.com/hazyhaar/pricewatch/monitor/internal/notify"
	"github.com/hazyhaar/pricewatch/monitor/internal/render"
	"github.com/hazyhaar/pricewatch/monitor/internal/store"
)

// FallbackChange is the single summary line sent when a change has no
// focus-unit difference to show.
const FallbackChange = "(content changed)"

// ErrRunInProgress is returned when Run is called while another run of the
// same Runner is still active.
var ErrRunInProgress = errors.New("runner: run already in progress")

// Policy decides when an established target counts as changed.
type Policy string

const (
	// PolicyFingerprint reports a change when the fingerprint differs.
	PolicyFingerprint Policy = "fingerprint"
	// PolicyAlways treats every established observation as changed.
	PolicyAlways Policy = "always"
)

// ParsePolicy maps a config string to a Policy. Empty means fingerprint.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFingerprint:
		return PolicyFingerprint, nil
	case PolicyAlways:
		return PolicyAlways, nil
	}
	return "", fmt.Errorf("runner: unknown change policy %q", s)
}

// Store is the subset of the target store the runner needs.
type Store interface {
	ListAll(ctx context.Context) ([]*store.Target, error)
	SetFingerprint(ctx context.Context, id, fp string, expected *string) error
	SetFingerprintAndSnapshot(ctx context.Context, id, fp, text string, expected *string) error
}

// RunLog records finished runs. *store.Store satisfies it.
type RunLog interface {
	RecordRun(ctx context.Context, run *store.Run, results []store.RunResult) error
}

// Observer receives best-effort notifications about outcomes. Errors are
// logged and never change a Result.
type Observer interface {
	ObserveTarget(ctx context.Context, o *Outcome) error
	ObserveRun(ctx context.Context, e *Execution) error
}

// Config configures a Runner.
type Config struct {
	Store    Store
	Renderer render.Renderer
	Notifier notify.Notifier
	Differ   diff.Differ // default diff.Focus{}
	RunLog   RunLog      // optional

	Observers []Observer

	// Workers bounds concurrent targets. Default: 4.
	Workers int
	// Policy defaults to PolicyFingerprint.
	Policy Policy
	// NotifyTimeout bounds one Send. Default: 30s.
	NotifyTimeout time.Duration
	// PersistTimeout bounds the baseline write after a delivered change.
	// That write ignores run cancellation. Default: 10s.
	PersistTimeout time.Duration

	NewRunID idgen.Generator // default run_<uuidv7>
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.Differ == nil {
		c.Differ = diff.Focus{}
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Policy == "" {
		c.Policy = PolicyFingerprint
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = 30 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.NewRunID == nil {
		c.NewRunID = idgen.Prefixed("run_", idgen.Default)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Runner executes monitoring runs. Runs of one Runner never overlap.
type Runner struct {
	cfg    Config
	mu     sync.Mutex
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Runner. Store, Renderer and Notifier are required.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil || cfg.Renderer == nil || cfg.Notifier == nil {
		return nil, fmt.Errorf("runner: store, renderer and notifier are required")
	}
	cfg.defaults()
	return &Runner{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/hazyhaar/pricewatch/monitor/internal/runner"),
		now:    time.Now,
	}, nil
}

// Policy returns the configured change policy.
func (r *Runner) Policy() Policy { return r.cfg.Policy }

// Run executes one pass and returns one Result per loaded target, in load
// order. The only run-level errors are ErrRunInProgress and a failure to
// load the target list.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	e, err := r.Execute(ctx, TriggerFrom(ctx))
	if err != nil {
		return nil, err
	}
	return e.Results, nil
}

// Execute is Run with the run metadata. trigger labels the run log entry.
func (r *Runner) Execute(ctx context.Context, trigger string) (*Execution, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	if trigger == "" {
		trigger = TriggerAPI
	}
	exec := &Execution{ID: r.cfg.NewRunID(), Trigger: trigger, StartedAt: r.now()}
	log := r.cfg.Logger.With("run_id", exec.ID)

	ctx, span := r.tracer.Start(ctx, "pricewatch.run",
		trace.WithAttributes(attribute.String("run.id", exec.ID), attribute.String("run.trigger", trigger)))
	defer span.End()

	targets, err := r.cfg.Store.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list targets")
		return nil, fmt.Errorf("runner: list targets: %w", err)
	}
	log.Info("runner: run started", "targets", len(targets), "trigger", trigger, "policy", r.cfg.Policy)

	outcomes := make([]*Outcome, len(targets))
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, t := range targets {
		if ctx.Err() != nil {
			outcomes[i] = skipped(t, ctx.Err())
			continue
		}
		g.Go(func() error {
			outcomes[i] = r.processSafe(ctx, t, log)
			return nil
		})
	}
	g.Wait()

	exec.Results = make([]Result, len(outcomes))
	for i, o := range outcomes {
		exec.Results[i] = o.Result
	}
	exec.FinishedAt = r.now()
	exec.Outcomes = outcomes

	r.finish(ctx, exec, log)
	span.SetAttributes(
		attribute.Int("run.total", len(exec.Results)),
		attribute.Int("run.changed", exec.Changed()),
		attribute.Int("run.failed", exec.Failed()),
	)
	return exec, nil
}

// finish records the run and fans out to observers. Nothing here can
// alter a Result.
func (r *Runner) finish(ctx context.Context, exec *Execution, log *slog.Logger) {
	// A cancelled run is still recorded.
	bg := context.WithoutCancel(ctx)

	for _, o := range exec.Outcomes {
		for _, obs := range r.cfg.Observers {
			if err := obs.ObserveTarget(bg, o); err != nil {
				log.Warn("runner: observer failed", "target_id", o.Target.ID, "error", err)
			}
		}
	}

	if r.cfg.RunLog != nil {
		run := &store.Run{
			ID:         exec.ID,
			Trigger:    exec.Trigger,
			StartedAt:  exec.StartedAt.UnixMilli(),
			FinishedAt: exec.FinishedAt.UnixMilli(),
		}
		if err := r.cfg.RunLog.RecordRun(bg, run, exec.RunResults()); err != nil {
			log.Warn("runner: record run failed", "error", err)
		}
	}

	for _, obs := range r.cfg.Observers {
		if err := obs.ObserveRun(bg, exec); err != nil {
			log.Warn("runner: run observer failed", "error", err)
		}
	}

	log.Info("runner: run finished",
		"total", len(exec.Results), "changed", exec.Changed(), "failed", exec.Failed(),
		"duration_ms", exec.FinishedAt.Sub(exec.StartedAt).Milliseconds())
}

// processSafe runs process and converts a panic into a failed Result.
func (r *Runner) processSafe(ctx context.Context, t *store.Target, log *slog.Logger) (o *Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("runner: target panicked", "target_id", t.ID, "url", t.URL,
				"panic", p, "stack", string(debug.Stack()))
			o = &Outcome{Target: t, Result: failed(t, fmt.Errorf("runner: panic: %v", p))}
		}
	}()
	if ctx.Err() != nil {
		return skipped(t, ctx.Err())
	}
	return r.process(ctx, t, log.With("target_id", t.ID, "url", t.URL))
}

// process is the per-target state machine. Steps never reorder: the
// baseline is only written after the notification outcome is known.
func (r *Runner) process(ctx context.Context, t *store.Target, log *slog.Logger) *Outcome {
	ctx, span := r.tracer.Start(ctx, "pricewatch.target",
		trace.WithAttributes(attribute.String("target.id", t.ID), attribute.String("target.url", t.URL)))
	defer span.End()

	o := &Outcome{Target: t}
	fail := func(err error) *Outcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, "target failed")
		o.Result = failed(t, err)
		return o
	}

	start := r.now()
	page, err := r.cfg.Renderer.Render(ctx, t.URL)
	o.RenderDuration = r.now().Sub(start)
	if err != nil {
		log.Warn("runner: render failed", "error", err)
		o.Stage = StageRender
		return fail(err)
	}
	o.Page = page
	o.Fingerprint = fingerprint.Of(page.Text)

	if !t.Established() {
		o.Bootstrap = true
		if err := r.cfg.Store.SetFingerprint(ctx, t.ID, o.Fingerprint, nil); err != nil {
			log.Warn("runner: bootstrap persist failed", "error", err)
			o.Stage = StagePersist
			return fail(&PersistenceError{TargetID: t.ID, Err: err})
		}
		log.Info("runner: baseline recorded")
		o.Result = Result{TargetID: t.ID, URL: t.URL}
		return o
	}

	if !r.changed(t, o.Fingerprint) {
		log.Debug("runner: unchanged")
		o.Result = Result{TargetID: t.ID, URL: t.URL}
		return o
	}

	var previous string
	if t.LastSnapshot != nil {
		previous = *t.LastSnapshot
	}
	o.Changes = r.cfg.Differ.Diff(previous, page.Text)
	if len(o.Changes) == 0 {
		o.Changes = []string{FallbackChange}
	}

	nctx, cancel := context.WithTimeout(ctx, r.cfg.NotifyTimeout)
	start = r.now()
	err = r.cfg.Notifier.Send(nctx, t.Recipient, t.URL, o.Changes)
	o.NotifyDuration = r.now().Sub(start)
	cancel()
	if err != nil {
		log.Warn("runner: notify failed, baseline kept", "error", err)
		o.Stage = StageNotify
		return fail(err)
	}
	o.Notified = true

	// The alert is out; a cancelled run must not leave the baseline behind it.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.PersistTimeout)
	defer cancel()
	if err := r.cfg.Store.SetFingerprintAndSnapshot(pctx, t.ID, o.Fingerprint, page.Text, t.LastFingerprint); err != nil {
		log.Error("runner: persist after notify failed", "error", err)
		o.Stage = StagePersist
		return fail(&PersistenceError{TargetID: t.ID, Err: err})
	}

	log.Info("runner: change notified", "changes", len(o.Changes))
	o.Result = Result{TargetID: t.ID, URL: t.URL, Changed: true}
	return o
}

func (r *Runner) changed(t *store.Target, fp string) bool {
	if r.cfg.Policy == PolicyAlways {
		return true
	}
	return *t.LastFingerprint != fp
}

func failed(t *store.Target, err error) Result {
	return Result{TargetID: t.ID, URL: t.URL, Error: err.Error()}
}

func skipped(t *store.Target, err error) *Outcome {
	return &Outcome{Target: t, Stage: StageSkipped, Result: failed(t, err)}
}
