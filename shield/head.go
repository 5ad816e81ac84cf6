package shield

import "net/http"

// HeadToGet rewrites HEAD to GET so routes registered with r.Get answer
// HEAD probes (uptime checks hit /health that way). net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
