package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeaders returns headers for a JSON-only API: nothing is ever meant
// to be framed, rendered as a document or cached by intermediaries.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response. Empty fields are skipped.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			set := func(k, v string) {
				if v != "" {
					h.Set(k, v)
				}
			}
			set("X-Content-Type-Options", cfg.XContentTypeOptions)
			set("X-Frame-Options", cfg.XFrameOptions)
			set("Referrer-Policy", cfg.ReferrerPolicy)
			set("Content-Security-Policy", cfg.CSP)
			set("Cache-Control", cfg.CacheControl)
			next.ServeHTTP(w, r)
		})
	}
}
