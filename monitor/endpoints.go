package monitor

import (
	"context"

	"github.com/hazyhaar/pricewatch/kit"
	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
)

// Endpoints shared by the HTTP and MCP surfaces.

type subscribeRequest struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}

type subscribeResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}

type listRunsRequest struct {
	Limit int `json:"limit"`
}

type getRunRequest struct {
	RunID string `json:"run_id"`
}

func (s *Service) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name))(ep)
}

func (s *Service) subscribeEndpoint() kit.Endpoint {
	return s.endpoint("subscribe", func(ctx context.Context, r any) (any, error) {
		p := r.(*subscribeRequest)
		t, err := s.Subscribe(ctx, p.Email, p.URL)
		if err != nil {
			return nil, err
		}
		return &subscribeResponse{OK: true, ID: t.ID}, nil
	})
}

func (s *Service) runNowEndpoint() kit.Endpoint {
	return s.endpoint("run_now", func(ctx context.Context, _ any) (any, error) {
		if runner.TriggerFrom(ctx) == "" {
			trigger := runner.TriggerAPI
			if kit.GetTransport(ctx) == "mcp" {
				trigger = runner.TriggerMCP
			}
			ctx = runner.WithTrigger(ctx, trigger)
		}
		return s.RunNow(ctx)
	})
}

func (s *Service) listTargetsEndpoint() kit.Endpoint {
	return s.endpoint("list_targets", func(ctx context.Context, _ any) (any, error) {
		return s.ListTargets(ctx)
	})
}

func (s *Service) listRunsEndpoint() kit.Endpoint {
	return s.endpoint("list_runs", func(ctx context.Context, r any) (any, error) {
		return s.ListRuns(ctx, r.(*listRunsRequest).Limit)
	})
}

func (s *Service) getRunEndpoint() kit.Endpoint {
	return s.endpoint("get_run", func(ctx context.Context, r any) (any, error) {
		return s.GetRun(ctx, r.(*getRunRequest).RunID)
	})
}
