// Package archive keeps a human-readable markdown copy of every baseline a
// target moves to. Each file is the sanitized primary content region of
// the page converted to markdown, under YAML frontmatter, written
// atomically (write .tmp then rename).
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
	"github.com/hazyhaar/pricewatch/safeurl"
)

// Metadata is the frontmatter of one archived snapshot.
type Metadata struct {
	TargetID    string    `yaml:"target_id"`
	URL         string    `yaml:"url"`
	Fingerprint string    `yaml:"fingerprint"`
	RunID       string    `yaml:"run_id,omitempty"`
	Kind        string    `yaml:"kind"` // "baseline" or "change"
	Changes     []string  `yaml:"changes,omitempty"`
	CapturedAt  time.Time `yaml:"captured_at"`
}

// Archive writes snapshots under dir/<target_id>/.
type Archive struct {
	dir    string
	conv   *converter.Converter
	policy *bluemonday.Policy
	logger *slog.Logger
	now    func() time.Time
}

var _ runner.Observer = (*Archive)(nil)

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) { a.logger = l }
}

// New creates an Archive rooted at dir. The directory is created on first
// write.
func New(dir string, opts ...Option) *Archive {
	a := &Archive{
		dir: dir,
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Save sanitizes mainHTML, converts it to markdown and writes it with
// meta as frontmatter. Returns the written path.
func (a *Archive) Save(ctx context.Context, meta Metadata, mainHTML string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if meta.CapturedAt.IsZero() {
		meta.CapturedAt = a.now()
	}

	dir, err := safeurl.SafePath(a.dir, meta.TargetID)
	if err != nil {
		return "", fmt.Errorf("archive: target dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir %s: %w", dir, err)
	}

	md, err := a.Markdown(mainHTML, meta.URL)
	if err != nil {
		return "", err
	}
	front, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("archive: frontmatter: %w", err)
	}

	short := meta.Fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	name := fmt.Sprintf("%d-%s.md", meta.CapturedAt.UnixMilli(), short)
	target := filepath.Join(dir, name)
	tmp := target + ".tmp"

	content := "---\n" + string(front) + "---\n\n" + md
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("archive: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("archive: rename: %w", err)
	}
	return target, nil
}

// Markdown sanitizes html and converts it to markdown. Relative links are
// resolved against pageURL.
func (a *Archive) Markdown(html, pageURL string) (string, error) {
	clean := a.policy.Sanitize(html)
	md, err := a.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("archive: markdown: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// ObserveTarget archives every baseline the runner recorded: the bootstrap
// observation and each delivered change.
func (a *Archive) ObserveTarget(ctx context.Context, o *runner.Outcome) error {
	if o.Page == nil || o.Result.Failed() {
		return nil
	}
	kind := ""
	switch {
	case o.Bootstrap:
		kind = "baseline"
	case o.Result.Changed:
		kind = "change"
	default:
		return nil
	}
	path, err := a.Save(ctx, Metadata{
		TargetID:    o.Target.ID,
		URL:         o.Target.URL,
		Fingerprint: o.Fingerprint,
		Kind:        kind,
		Changes:     o.Changes,
	}, o.Page.MainHTML)
	if err != nil {
		return err
	}
	a.logger.Debug("archive: snapshot written", "target_id", o.Target.ID, "path", path)
	return nil
}

func (a *Archive) ObserveRun(context.Context, *runner.Execution) error { return nil }
