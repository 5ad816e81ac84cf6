package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHTTP_Subscribe(t *testing.T) {
	// WHAT: POST /api/subscribe returns {ok:true,id} or 400 {ok:false,error:"Invalid input"}.
	// WHY: the public contract of the registration endpoint.
	svc, _, _ := setupTestService(t, nil)
	h := svc.Handler(nil)

	rec, body := doJSON(t, h, http.MethodPost, "/api/subscribe", `{"email":"ops@acme.test","url":"https://acme.test/pricing"}`)
	if rec.Code != http.StatusOK || body["ok"] != true || body["id"] != "t-1" {
		t.Fatalf("valid subscribe: %d %v", rec.Code, body)
	}

	for _, payload := range []string{
		`{"email":"nope","url":"https://acme.test"}`,
		`{"email":"ops@acme.test","url":"javascript:alert(1)"}`,
		`{"email":`,
	} {
		rec, body = doJSON(t, h, http.MethodPost, "/api/subscribe", payload)
		if rec.Code != http.StatusBadRequest || body["ok"] != false || body["error"] != "Invalid input" {
			t.Errorf("payload %s: %d %v", payload, rec.Code, body)
		}
	}
}

func TestHTTP_Run(t *testing.T) {
	// WHAT: POST /api/subscribe/run returns the run report with per-target results.
	// WHY: callers poll this endpoint from cron jobs and parse results.
	svc, pages, _ := setupTestService(t, nil)
	h := svc.Handler(nil)
	tg, _ := svc.Subscribe(context.Background(), "ops@acme.test", "https://acme.test/")
	pages.set(tg.URL, "Starter $9")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/subscribe/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rec.Code, rec.Body)
	}
	var report struct {
		OK      bool             `json:"ok"`
		RunID   string           `json:"run_id"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if !report.OK || report.RunID != "run-1" || len(report.Results) != 1 {
		t.Fatalf("report: %+v", report)
	}
	if r := report.Results[0]; r["id"] != tg.ID || r["changed"] != false {
		t.Fatalf("result: %v", r)
	}
	if _, hasErr := report.Results[0]["error"]; hasErr {
		t.Fatal("success result must not carry error")
	}

	rec, body := doJSON(t, h, http.MethodGet, "/api/runs/run-1", "")
	if rec.Code != http.StatusOK || body["trigger"] != "api" {
		t.Fatalf("get run: %d %v", rec.Code, body)
	}
	rec, _ = doJSON(t, h, http.MethodGet, "/api/runs/run-404", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rec.Code)
	}
}

func TestHTTP_RunConflict(t *testing.T) {
	// WHAT: a run request during an active run gets 409.
	// WHY: the client must be told to retry later rather than see a 500.
	svc, pages, _ := setupTestService(t, nil)
	h := svc.Handler(nil)
	tg, _ := svc.Subscribe(context.Background(), "ops@acme.test", "https://acme.test/")
	pages.set(tg.URL, "Pro $1")
	pages.block = make(chan struct{})
	pages.entered = make(chan struct{}, 1)

	done := make(chan struct{})
	go func() {
		svc.RunNow(context.Background())
		close(done)
	}()
	<-pages.entered

	rec, body := doJSON(t, h, http.MethodPost, "/api/subscribe/run", "")
	close(pages.block)
	<-done
	if rec.Code != http.StatusConflict || body["ok"] != false {
		t.Fatalf("conflict: %d %v", rec.Code, body)
	}
}

func TestHTTP_ListsAndHealth(t *testing.T) {
	svc, _, _ := setupTestService(t, nil)
	h := svc.Handler(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/targets", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty targets: %q", rec.Body)
	}

	svc.Subscribe(context.Background(), "ops@acme.test", "https://acme.test/")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/targets", nil))
	var targets []map[string]any
	json.Unmarshal(rec.Body.Bytes(), &targets)
	if len(targets) != 1 || targets[0]["url"] != "https://acme.test/" {
		t.Fatalf("targets: %v", targets)
	}
	if _, leaked := targets[0]["last_snapshot"]; leaked {
		t.Fatal("snapshot text must not be exposed")
	}

	rec, body := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || body["targets"] != float64(1) {
		t.Fatalf("health: %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("shield stack should set X-Trace-ID")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pricewatch_") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestHTTP_MCPMounted(t *testing.T) {
	// WHAT: /mcp is served only when an MCP server is supplied.
	svc, _, _ := setupTestService(t, nil)

	rec := httptest.NewRecorder()
	svc.Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("without MCP: %d", rec.Code)
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: "pricewatch", Version: "test"}, nil)
	svc.RegisterMCP(srv)
	rec = httptest.NewRecorder()
	svc.Handler(srv).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code == http.StatusNotFound {
		t.Fatal("/mcp should be mounted")
	}
}
