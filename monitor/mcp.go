package monitor

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pricewatch/kit"
)

// RegisterMCP registers all pricewatch tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pricewatch_subscribe",
		Description: "Watch a pricing page and email the recipient when its plans or prices change",
		InputSchema: inputSchema(map[string]any{
			"email": map[string]any{"type": "string", "description": "Recipient email address"},
			"url":   map[string]any{"type": "string", "description": "http(s) URL of the page to watch"},
		}, []string{"email", "url"}),
	}, s.subscribeEndpoint(), kit.DecodeArgs[subscribeRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pricewatch_list_targets",
		Description: "List every watched page with its recipient and current fingerprint",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.listTargetsEndpoint(), kit.DecodeArgs[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pricewatch_run_now",
		Description: "Check every watched page now and notify on changes; fails if a run is already in progress",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, s.runNowEndpoint(), kit.DecodeArgs[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pricewatch_list_runs",
		Description: "List recent monitoring runs, newest first",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs to return (default 50)"},
		}, nil),
	}, s.listRunsEndpoint(), kit.DecodeArgs[listRunsRequest])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "pricewatch_get_run",
		Description: "Get one run with its per-target results",
		InputSchema: inputSchema(map[string]any{
			"run_id": map[string]any{"type": "string", "description": "Run ID"},
		}, []string{"run_id"}),
	}, s.getRunEndpoint(), kit.DecodeArgs[getRunRequest])
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
