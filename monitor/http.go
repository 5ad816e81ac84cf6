package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
	"github.com/hazyhaar/pricewatch/shield"
)

// invalidInput is the public body of every validation failure. Details
// go to the log only.
const invalidInput = "Invalid input"

// Handler returns the full HTTP surface: the API routes behind the shield
// stack, /health, /metrics and, when mcpSrv is non-nil, the MCP
// streamable endpoint at /mcp. Every request is traced with otelhttp.
func (s *Service) Handler(mcpSrv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		n, err := s.store.CountTargets(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "targets": n})
	})
	r.Method(http.MethodGet, "/metrics", s.MetricsHandler())

	if mcpSrv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
	}

	s.RegisterHTTP(r)
	return otelhttp.NewHandler(r, "pricewatch")
}

// RegisterHTTP mounts the API routes on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	subscribe := s.subscribeEndpoint()
	runNow := s.runNowEndpoint()
	listTargets := s.listTargetsEndpoint()
	listRuns := s.listRunsEndpoint()
	getRun := s.getRunEndpoint()

	r.Post("/api/subscribe", func(w http.ResponseWriter, r *http.Request) {
		var req subscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shield.GetLogger(r.Context()).Info("monitor: bad subscribe body", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": invalidInput})
			return
		}
		resp, err := subscribe(r.Context(), &req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Post("/api/subscribe/run", func(w http.ResponseWriter, r *http.Request) {
		ctx := runner.WithTrigger(r.Context(), runner.TriggerAPI)
		resp, err := runNow(ctx, nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/api/targets", func(w http.ResponseWriter, r *http.Request) {
		resp, err := listTargets(r.Context(), nil)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/api/targets/{targetID}", func(w http.ResponseWriter, r *http.Request) {
		t, err := s.GetTarget(r.Context(), chi.URLParam(r, "targetID"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		resp, err := listRuns(r.Context(), &listRunsRequest{Limit: queryInt(r, "limit", 50)})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/api/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		resp, err := getRun(r.Context(), &getRunRequest{RunID: chi.URLParam(r, "runID")})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// writeServiceError maps service errors to status codes. Internal error
// text is not echoed.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": invalidInput})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not found"})
	case errors.Is(err, runner.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": "run already in progress"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

