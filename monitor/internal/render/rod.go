package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Defaults for RodConfig.
const (
	DefaultNavTimeout = 30 * time.Second
	DefaultSettle     = 1500 * time.Millisecond
	deadlineMargin    = 10 * time.Second
)

// ErrNavTimeout is wrapped in the FetchError of a navigation that did not
// reach DOMContentLoaded in time.
var ErrNavTimeout = errors.New("render: navigation timeout")

// RodConfig configures the browser renderer.
type RodConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome. One
	// connection is shared by all calls, each running in its own incognito
	// context. Empty = launch a local headless Chrome per call.
	RemoteURL string

	// NavTimeout bounds navigation up to DOMContentLoaded. Default: 30s.
	NavTimeout time.Duration

	// Settle is the fixed wait after DOMContentLoaded for client-side
	// rendering. Default: 1.5s.
	Settle time.Duration

	// ResourceBlocking lists resource types to abort: images, fonts,
	// media, stylesheets.
	ResourceBlocking []string

	// NoStealth disables go-rod/stealth page patches.
	NoStealth bool

	// Bin is an explicit Chrome binary for the local launcher.
	Bin string

	Logger *slog.Logger
}

func (c *RodConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = DefaultNavTimeout
	}
	if c.Settle < 0 {
		c.Settle = 0
	} else if c.Settle == 0 {
		c.Settle = DefaultSettle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Rod renders pages in headless Chrome.
type Rod struct {
	cfg RodConfig

	mu     sync.Mutex
	remote *remoteConn // shared DevTools connection in remote mode
}

type remoteConn struct {
	ws      *cdp.WebSocket
	browser *rod.Browser
}

var _ Renderer = (*Rod)(nil)

// NewRod creates a browser renderer. No Chrome is started until Render.
func NewRod(cfg RodConfig) *Rod {
	cfg.defaults()
	return &Rod{cfg: cfg}
}

// Render opens a fresh browser session, navigates, waits for the settle
// delay and normalizes the resulting DOM. The session is torn down on
// every return path. The whole call is bounded by NavTimeout + Settle +
// a fixed margin even if Chrome stops answering.
func (r *Rod) Render(ctx context.Context, url string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout+r.cfg.Settle+deadlineMargin)
	defer cancel()

	start := time.Now()
	html, err := r.capture(ctx, url)
	if err != nil {
		r.cfg.Logger.Debug("render: rod failed", "url", url, "error", err)
		return nil, fetchErr(url, err)
	}
	r.cfg.Logger.Debug("render: rod captured",
		"url", url, "size", len(html), "duration_ms", time.Since(start).Milliseconds())
	return pageFromHTML(url, html)
}

func (r *Rod) capture(ctx context.Context, url string) (html string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render: browser panic: %v", p)
		}
	}()

	b, closeSession, err := r.session(ctx)
	if err != nil {
		return "", err
	}
	defer closeSession()

	var page *rod.Page
	if r.cfg.NoStealth {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(b)
	}
	if err != nil {
		return "", fmt.Errorf("render: create page: %w", err)
	}
	defer page.Close()

	if len(r.cfg.ResourceBlocking) > 0 {
		router, err := blockResources(page, r.cfg.ResourceBlocking)
		if err != nil {
			r.cfg.Logger.Warn("render: resource blocking failed", "error", err)
		} else {
			defer router.Stop()
		}
	}

	navCtx, navCancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer navCancel()

	wait := page.Context(navCtx).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := page.Context(navCtx).Navigate(url); err != nil {
		if navCtx.Err() != nil {
			return "", fmt.Errorf("%w after %s", ErrNavTimeout, r.cfg.NavTimeout)
		}
		return "", fmt.Errorf("render: navigate: %w", err)
	}
	wait()
	if navCtx.Err() != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w after %s", ErrNavTimeout, r.cfg.NavTimeout)
	}

	if err := sleepCtx(ctx, r.cfg.Settle); err != nil {
		return "", err
	}

	res, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("render: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// session returns a browser scoped to one Render call and its teardown.
func (r *Rod) session(ctx context.Context) (*rod.Browser, func(), error) {
	log := r.cfg.Logger

	if r.cfg.RemoteURL != "" {
		root, err := r.remoteRoot(ctx)
		if err != nil {
			return nil, nil, err
		}
		inc, err := root.Context(ctx).Incognito()
		if err != nil {
			if ctx.Err() == nil {
				r.dropRemote(root)
			}
			return nil, nil, fmt.Errorf("render: incognito: %w", err)
		}
		if err := inc.IgnoreCertErrors(true); err != nil {
			log.Warn("render: ignore cert errors failed", "error", err)
		}
		// Disposing the incognito context must outlive an expired call ctx.
		return inc, func() {
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := inc.Context(dctx).Close(); err != nil {
				log.Warn("render: dispose incognito context", "error", err)
			}
		}, nil
	}

	l := launcher.New().Context(ctx).Headless(true).
		Set("disable-blink-features", "AutomationControlled")
	if r.cfg.Bin != "" {
		l = l.Bin(r.cfg.Bin)
	}
	wsURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("render: launch: %w", err)
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, nil, fmt.Errorf("render: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("render: ignore cert errors failed", "error", err)
	}
	return b, func() {
		b.Close()
		l.Kill()
		l.Cleanup()
	}, nil
}

// remoteRoot returns the shared connection to the remote Chrome, dialing
// it on first use or after the previous one broke.
func (r *Rod) remoteRoot(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remote != nil {
		return r.remote.browser, nil
	}

	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, r.cfg.RemoteURL, nil); err != nil {
		return nil, fmt.Errorf("render: connect remote: %w", err)
	}
	b := rod.New().Client(cdp.New().Start(ws))
	if err := b.Connect(); err != nil {
		ws.Close()
		return nil, fmt.Errorf("render: connect remote: %w", err)
	}
	r.remote = &remoteConn{ws: ws, browser: b}
	r.cfg.Logger.Info("render: connected to remote chrome", "url", r.cfg.RemoteURL)
	return b, nil
}

// dropRemote closes b if it is still the shared connection, so the next
// call redials.
func (r *Rod) dropRemote(b *rod.Browser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remote != nil && r.remote.browser == b {
		r.remote.ws.Close()
		r.remote = nil
		r.cfg.Logger.Warn("render: remote chrome connection dropped", "url", r.cfg.RemoteURL)
	}
}

// Close releases the shared remote connection. The remote Chrome itself
// keeps running. Local sessions are already torn down per call.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remote == nil {
		return nil
	}
	err := r.remote.ws.Close()
	r.remote = nil
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
