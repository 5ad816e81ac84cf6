package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/pricewatch/monitor/internal/render"
	"github.com/hazyhaar/pricewatch/monitor/internal/store"
)

// Trigger labels.
const (
	TriggerAPI      = "api"
	TriggerMCP      = "mcp"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

type triggerKey struct{}

// WithTrigger labels runs started with ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFrom returns the trigger label stored in ctx, or "".
func TriggerFrom(ctx context.Context) string {
	v, _ := ctx.Value(triggerKey{}).(string)
	return v
}

// Result is the outcome of one target in one run. Exactly one of Changed
// (success) or Error (failure) is meaningful.
type Result struct {
	TargetID string
	URL      string
	Changed  bool
	Error    string
}

// Failed reports whether the target failed in this run.
func (r Result) Failed() bool { return r.Error != "" }

// MarshalJSON emits {"id","url","changed"} on success and
// {"id","url","error"} on failure.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			ID    string `json:"id"`
			URL   string `json:"url"`
			Error string `json:"error"`
		}{r.TargetID, r.URL, r.Error})
	}
	return json.Marshal(struct {
		ID      string `json:"id"`
		URL     string `json:"url"`
		Changed bool   `json:"changed"`
	}{r.TargetID, r.URL, r.Changed})
}

// UnmarshalJSON accepts either shape produced by MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string `json:"id"`
		URL     string `json:"url"`
		Changed bool   `json:"changed"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{TargetID: raw.ID, URL: raw.URL, Changed: raw.Changed, Error: raw.Error}
	return nil
}

// Stage names where a target stopped.
type Stage string

const (
	StageDone    Stage = ""
	StageRender  Stage = "render"
	StageNotify  Stage = "notify"
	StagePersist Stage = "persist"
	StageSkipped Stage = "skipped"
)

// Outcome is the full per-target record handed to observers.
type Outcome struct {
	Target         *store.Target
	Page           *render.Page // nil when rendering failed
	Fingerprint    string
	Changes        []string // lines sent, nil when nothing was sent
	Bootstrap      bool
	Notified       bool
	Stage          Stage
	RenderDuration time.Duration
	NotifyDuration time.Duration
	Result         Result
}

// Execution is a finished run.
type Execution struct {
	ID         string
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []Result
	Outcomes   []*Outcome
}

// Changed counts targets reported changed.
func (e *Execution) Changed() int {
	n := 0
	for _, r := range e.Results {
		if r.Changed {
			n++
		}
	}
	return n
}

// Failed counts targets that failed.
func (e *Execution) Failed() int {
	n := 0
	for _, r := range e.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// RunResults converts Results for the run log.
func (e *Execution) RunResults() []store.RunResult {
	out := make([]store.RunResult, len(e.Results))
	for i, r := range e.Results {
		out[i] = store.RunResult{Seq: i, TargetID: r.TargetID, URL: r.URL, Changed: r.Changed, Error: r.Error}
	}
	return out
}

// PersistenceError reports that a baseline write failed after the target
// was rendered (and, for a change, notified).
type PersistenceError struct {
	TargetID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("runner: persist target %s: %v", e.TargetID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
