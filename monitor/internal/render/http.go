package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/pricewatch/safeurl"
)

// MaxBodyBytes caps a static fetch.
const MaxBodyBytes int64 = 10 << 20

const defaultUserAgent = "Mozilla/5.0 (compatible; pricewatch/1.0)"

// HTTP renders with a single GET and no JavaScript.
type HTTP struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

var _ Renderer = (*HTTP)(nil)

// HTTPOption configures an HTTP renderer.
type HTTPOption func(*HTTP)

// WithClient sets a custom HTTP client. Its CheckRedirect is replaced
// by safeurl.CheckRedirect unless already set.
func WithClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(h *HTTP) { h.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP creates a static renderer. The default client times out after
// DefaultNavTimeout and refuses redirects into private networks.
func NewHTTP(opts ...HTTPOption) *HTTP {
	h := &HTTP{
		client: &http.Client{Timeout: DefaultNavTimeout, CheckRedirect: safeurl.CheckRedirect},
		ua:     defaultUserAgent,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	if h.client.CheckRedirect == nil {
		c := *h.client
		c.CheckRedirect = safeurl.CheckRedirect
		h.client = &c
	}
	return h
}

// Render GETs url and normalizes the body. Statuses outside 2xx fail.
func (h *HTTP) Render(ctx context.Context, url string) (*Page, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fetchErr(url, err)
	}
	req.Header.Set("User-Agent", h.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fetchErr(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fetchErr(url, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := safeurl.LimitedReadAll(resp.Body, MaxBodyBytes)
	if err != nil {
		return nil, fetchErr(url, err)
	}

	h.logger.Debug("render: http fetched",
		"url", url, "status", resp.StatusCode, "size", len(body),
		"duration_ms", time.Since(start).Milliseconds())
	return pageFromHTML(url, string(body))
}
