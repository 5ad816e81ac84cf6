package monitor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCP(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: "pricewatch", Version: "test"}, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res.Content[0].(*mcp.TextContent).Text, res.IsError
}

func TestMCP_Tools(t *testing.T) {
	// WHAT: the tools cover subscribe, run, and both listings.
	// WHY: agents drive pricewatch entirely through MCP.
	svc, pages, _ := setupTestService(t, nil)
	session := connectMCP(t, svc)

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"pricewatch_subscribe", "pricewatch_list_targets", "pricewatch_run_now", "pricewatch_list_runs", "pricewatch_get_run"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}

	text, isErr := callTool(t, session, "pricewatch_subscribe", map[string]any{"email": "ops@acme.test", "url": "https://acme.test/"})
	if isErr {
		t.Fatalf("subscribe: %s", text)
	}
	var sub subscribeResponse
	json.Unmarshal([]byte(text), &sub)
	if !sub.OK || sub.ID == "" {
		t.Fatalf("subscribe response: %s", text)
	}
	pages.set("https://acme.test/", "Enterprise plan")

	_, isErr = callTool(t, session, "pricewatch_subscribe", map[string]any{"email": "bad", "url": "https://acme.test/"})
	if !isErr {
		t.Fatal("invalid subscribe should be a tool error")
	}

	text, isErr = callTool(t, session, "pricewatch_run_now", map[string]any{})
	if isErr {
		t.Fatalf("run_now: %s", text)
	}
	var report RunReport
	json.Unmarshal([]byte(text), &report)
	if !report.OK || len(report.Results) != 1 {
		t.Fatalf("report: %s", text)
	}

	text, _ = callTool(t, session, "pricewatch_get_run", map[string]any{"run_id": report.RunID})
	var detail map[string]any
	json.Unmarshal([]byte(text), &detail)
	if detail["trigger"] != "mcp" {
		t.Fatalf("run triggered over MCP should be labelled mcp: %s", text)
	}

	text, _ = callTool(t, session, "pricewatch_list_runs", map[string]any{"limit": 5})
	var runs []map[string]any
	json.Unmarshal([]byte(text), &runs)
	if len(runs) != 1 {
		t.Fatalf("runs: %s", text)
	}

	text, _ = callTool(t, session, "pricewatch_list_targets", map[string]any{})
	var targets []map[string]any
	json.Unmarshal([]byte(text), &targets)
	if len(targets) != 1 || targets[0]["last_fingerprint"] == nil {
		t.Fatalf("targets after bootstrap: %s", text)
	}
}
