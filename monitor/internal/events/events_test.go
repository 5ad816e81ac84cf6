package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
	"github.com/hazyhaar/pricewatch/monitor/internal/store"
)

type message struct {
	subject string
	data    []byte
}

func capture() (*Publisher, *[]message) {
	var msgs []message
	p := NewPublisher(func(_ context.Context, subj string, data []byte) error {
		msgs = append(msgs, message{subj, data})
		return nil
	}, nil)
	return p, &msgs
}

func TestObserveTarget_OnlyChanges(t *testing.T) {
	p, msgs := capture()
	tg := &store.Target{ID: "t1", URL: "https://acme.test", Recipient: "ops@acme.test"}
	ctx := context.Background()

	p.ObserveTarget(ctx, &runner.Outcome{Target: tg, Bootstrap: true})
	p.ObserveTarget(ctx, &runner.Outcome{Target: tg, Result: runner.Result{Error: "x"}})
	if len(*msgs) != 0 {
		t.Fatalf("published %d messages for non-changes", len(*msgs))
	}

	err := p.ObserveTarget(ctx, &runner.Outcome{
		Target: tg, Fingerprint: "fp", Changes: []string{"+ Pro $39"},
		Result: runner.Result{TargetID: "t1", Changed: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*msgs) != 1 || (*msgs)[0].subject != SubjectTargetChanged {
		t.Fatalf("msgs = %+v", *msgs)
	}
	var ev TargetChanged
	json.Unmarshal((*msgs)[0].data, &ev)
	if ev.TargetID != "t1" || ev.Recipient != "ops@acme.test" || len(ev.Changes) != 1 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestObserveRun(t *testing.T) {
	p, msgs := capture()
	start := time.UnixMilli(1_700_000_000_000)
	e := &runner.Execution{
		ID: "run_1", Trigger: "api", StartedAt: start, FinishedAt: start.Add(time.Second),
		Results: []runner.Result{{Changed: true}, {Error: "x"}, {}},
	}
	if err := p.ObserveRun(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	var ev RunFinished
	json.Unmarshal((*msgs)[0].data, &ev)
	want := RunFinished{RunID: "run_1", Trigger: "api", StartedAt: 1_700_000_000_000, FinishedAt: 1_700_000_001_000, Total: 3, Changed: 1, Failed: 1}
	if ev != want {
		t.Fatalf("event = %+v, want %+v", ev, want)
	}
}

func TestPublishError(t *testing.T) {
	p := NewPublisher(func(context.Context, string, []byte) error { return errors.New("no responders") }, nil)
	err := p.ObserveRun(context.Background(), &runner.Execution{ID: "run_1"})
	if err == nil {
		t.Fatal("expected publish error")
	}
	p.Close()
}
