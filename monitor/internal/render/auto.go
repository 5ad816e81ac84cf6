package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Sufficiency thresholds for Auto: a static response is kept when it has at
// least minStaticText runes of normalized text making up at least
// minTextRatio of the document and no SPA mount-point markers.
const (
	minStaticText = 200
	minTextRatio  = 0.10
)

var spaIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<noscript>you need to enable javascript`,
	`<noscript>enable javascript`,
}

// Auto tries a static GET first and escalates to the browser when the
// result fails, or looks like a client-rendered shell.
type Auto struct {
	Static  Renderer
	Browser Renderer
	Logger  *slog.Logger
}

var _ Renderer = (*Auto)(nil)

func (a *Auto) Render(ctx context.Context, url string) (*Page, error) {
	log := a.Logger
	if log == nil {
		log = slog.Default()
	}
	page, err := a.Static.Render(ctx, url)
	if err == nil && Sufficient(page) {
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, fetchErr(url, ctx.Err())
	}
	log.Debug("render: escalating to browser", "url", url, "static_error", err)
	return a.Browser.Render(ctx, url)
}

// Close releases whichever inner renderer holds resources.
func (a *Auto) Close() error {
	var errs []error
	for _, r := range []Renderer{a.Static, a.Browser} {
		if c, ok := r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Sufficient reports whether a statically fetched page carries enough text
// that a browser render is unlikely to change it.
func Sufficient(p *Page) bool {
	if p == nil || len(p.HTML) == 0 {
		return false
	}
	textLen := len([]rune(p.Text))
	if textLen < minStaticText {
		return false
	}
	if float64(len(p.Text))/float64(len(p.HTML)) < minTextRatio {
		return false
	}
	lower := strings.ToLower(p.HTML)
	for _, ind := range spaIndicators {
		if strings.Contains(lower, ind) {
			return false
		}
	}
	return true
}
