package api

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/readq/internal/queue"
	"github.com/kalambet/readq/internal/service"
	"github.com/kalambet/readq/internal/srs"
	"github.com/kalambet/readq/internal/wire"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *service.Service
}

// NewMCPServer creates an MCP server with the queue tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"readq",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("readq: incremental reading queue with spaced repetition scheduling."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_queue",
			mcp.WithDescription("List the active review queue ranked by a priority preset."),
			mcp.WithString("preset", mcp.Description("Priority preset name (default maximize-retention)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 20)")),
		),
		mcpGetQueue(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_stats",
			mcp.WithDescription("Summarize the queue: due, overdue, new, learning and review counts."),
		),
		mcpQueueStats(deps),
	)

	s.AddTool(
		mcp.NewTool("rate_item",
			mcp.WithDescription("Record a review rating for an item and return its next schedule."),
			mcp.WithString("item_id", mcp.Description("Item id"), mcp.Required()),
			mcp.WithString("rating", mcp.Description("again, hard, good or easy (or 1-4)"), mcp.Required()),
		),
		mcpRateItem(deps),
	)

	s.AddTool(
		mcp.NewTool("plan_session",
			mcp.WithDescription("Split the ranked queue into time-boxed session blocks."),
			mcp.WithString("preset", mcp.Description("Priority preset name")),
		),
		mcpPlanSession(deps),
	)

	s.AddTool(
		mcp.NewTool("postpone_item",
			mcp.WithDescription("Push an item's due date back by 1 to 365 days."),
			mcp.WithString("item_id", mcp.Description("Item id"), mcp.Required()),
			mcp.WithNumber("days", mcp.Description("Days to postpone"), mcp.Required()),
		),
		mcpPostponeItem(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"readq://presets",
			"Priority Presets",
			mcp.WithResourceDescription("Priority presets and their dimension weights"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePresets,
	)

	return s
}

func mcpGetQueue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 200 {
			limit = 200
		}

		ranked, err := deps.Service.Ranked(req.GetString("preset", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("ranking failed: %v", err)), nil
		}
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		if ranked == nil {
			ranked = []queue.Scored{}
		}
		return mcpJSON(ranked), nil
	}
}

func mcpQueueStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Service.Stats()), nil
	}
}

func mcpRateItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("item_id")
		if err != nil {
			return mcpError("item_id is required"), nil
		}
		raw, err := req.RequireString("rating")
		if err != nil {
			return mcpError("rating is required"), nil
		}
		rating, err := srs.ParseRating(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		st, err := deps.Service.Rate(ctx, id, rating)
		if err != nil {
			return mcpError(fmt.Sprintf("rating failed: %v", err)), nil
		}
		return mcpJSON(st), nil
	}
}

func mcpPlanSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		blocks, err := deps.Service.SessionBlocks(service.BlocksRequest{Preset: req.GetString("preset", "")})
		if err != nil {
			return mcpError(fmt.Sprintf("planning failed: %v", err)), nil
		}
		return mcpJSON(blocks), nil
	}
}

func mcpPostponeItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("item_id")
		if err != nil {
			return mcpError("item_id is required"), nil
		}
		days := req.GetInt("days", 0)

		due, err := deps.Service.Postpone(ctx, id, days)
		if err != nil {
			return mcpError(fmt.Sprintf("postpone failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Postponed %s until %s", id, due.Format(time.RFC3339))), nil
	}
}

func mcpResourcePresets(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	b, err := wire.MarshalCamel(queue.Presets())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presets: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := wire.MarshalCamel(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
