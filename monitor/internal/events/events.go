// Package events publishes run outcomes to NATS so other services can
// react to pricing changes without polling the API.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
)

// Subjects.
const (
	SubjectTargetChanged = "pricewatch.targets.changed"
	SubjectRunFinished   = "pricewatch.runs.finished"
)

// TargetChanged is published for every delivered change.
type TargetChanged struct {
	TargetID    string   `json:"target_id"`
	URL         string   `json:"url"`
	Recipient   string   `json:"recipient"`
	Fingerprint string   `json:"fingerprint"`
	Changes     []string `json:"changes"`
}

// RunFinished is published once per run.
type RunFinished struct {
	RunID      string `json:"run_id"`
	Trigger    string `json:"trigger"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	Total      int    `json:"total"`
	Changed    int    `json:"changed"`
	Failed     int    `json:"failed"`
}

// PublishFunc sends one encoded message.
type PublishFunc func(ctx context.Context, subject string, data []byte) error

// Publisher turns runner outcomes into NATS messages.
type Publisher struct {
	publish PublishFunc
	close   func()
	logger  *slog.Logger
}

var _ runner.Observer = (*Publisher)(nil)

// Connect dials NATS at url. With jetStream, messages go through
// JetStream (a stream must cover the pricewatch.> subjects) and each
// publish waits for the ack; otherwise core NATS publish is used.
func Connect(url string, jetStream bool, logger *slog.Logger, opts ...nats.Option) (*Publisher, error) {
	opts = append([]nats.Option{nats.Name("pricewatch")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: connect: %w", err)
	}

	var publish PublishFunc
	if jetStream {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("events: jetstream: %w", err)
		}
		publish = func(ctx context.Context, subj string, data []byte) error {
			_, err := js.Publish(subj, data, nats.Context(ctx))
			return err
		}
	} else {
		publish = func(_ context.Context, subj string, data []byte) error {
			return nc.Publish(subj, data)
		}
	}

	p := NewPublisher(publish, logger)
	p.close = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

// NewPublisher wraps an arbitrary publish function.
func NewPublisher(publish PublishFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{publish: publish, logger: logger}
}

// Close drains the underlying connection, if any.
func (p *Publisher) Close() {
	if p != nil && p.close != nil {
		p.close()
	}
}

func (p *Publisher) send(ctx context.Context, subj string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := p.publish(ctx, subj, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subj, err)
	}
	return nil
}

// ObserveTarget publishes TargetChanged for delivered changes only.
func (p *Publisher) ObserveTarget(ctx context.Context, o *runner.Outcome) error {
	if !o.Result.Changed {
		return nil
	}
	return p.send(ctx, SubjectTargetChanged, TargetChanged{
		TargetID:    o.Target.ID,
		URL:         o.Target.URL,
		Recipient:   o.Target.Recipient,
		Fingerprint: o.Fingerprint,
		Changes:     o.Changes,
	})
}

// ObserveRun publishes RunFinished.
func (p *Publisher) ObserveRun(ctx context.Context, e *runner.Execution) error {
	return p.send(ctx, SubjectRunFinished, RunFinished{
		RunID:      e.ID,
		Trigger:    e.Trigger,
		StartedAt:  e.StartedAt.UnixMilli(),
		FinishedAt: e.FinishedAt.UnixMilli(),
		Total:      len(e.Results),
		Changed:    e.Changed(),
		Failed:     e.Failed(),
	})
}
