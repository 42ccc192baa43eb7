package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/lnsync/internal/docstore"
	"github.com/kalambet/lnsync/internal/period"
)

// RecordFinder looks up the record of a synced update.
type RecordFinder interface {
	FindRecord(ctx context.Context, updateID string) (docstore.Record, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Rollup  Aggregator
	Records RecordFinder
	Now     func() time.Time
}

// NewMCPServer creates an MCP server with the lnsync tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := server.NewMCPServer(
		"lnsync",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("lnsync mirrors Linear project updates into a document store and builds weekly rollups."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("run_rollup",
			mcp.WithDescription("Build or rebuild the rollup document for a period."),
			mcp.WithString("date", mcp.Description("Any date in the period, YYYY-MM-DD (default: today)")),
		),
		mcpRunRollup(deps),
	)

	s.AddTool(
		mcp.NewTool("week_ending",
			mcp.WithDescription("Return the anchor date (the closing Friday) of the period a date belongs to."),
			mcp.WithString("date", mcp.Description("Date, YYYY-MM-DD (default: today)")),
		),
		mcpWeekEnding(deps),
	)

	s.AddTool(
		mcp.NewTool("find_update",
			mcp.WithDescription("Look up the stored record of a Linear project update."),
			mcp.WithString("update_id", mcp.Description("Linear project update id"), mcp.Required()),
		),
		mcpFindUpdate(deps),
	)

	return s
}

func mcpRunRollup(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Rollup == nil {
			return mcpError("rollup is not configured"), nil
		}
		anchor, err := anchorFor(req.GetString("date", ""), deps.Now())
		if err != nil {
			return mcpError(err.Error()), nil
		}
		sum, err := deps.Rollup.Run(ctx, anchor)
		if err != nil {
			return mcpError(fmt.Sprintf("rollup for %s failed: %v", period.Format(anchor), err)), nil
		}
		return mcpJSON(sum)
	}
}

func mcpWeekEnding(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		anchor, err := anchorFor(req.GetString("date", ""), deps.Now())
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(period.Format(anchor)), nil
	}
}

func mcpFindUpdate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("update_id")
		if err != nil || id == "" {
			return mcpError("update_id is required"), nil
		}
		if deps.Records == nil {
			return mcpError("record store is not configured"), nil
		}

		rec, err := deps.Records.FindRecord(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			return mcpError(fmt.Sprintf("no record for update %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}

		type recordResult struct {
			PageID     string `json:"page_id"`
			UpdateID   string `json:"update_id"`
			Project    string `json:"project"`
			Team       string `json:"team"`
			MultiTeam  bool   `json:"multi_team"`
			WeekEnding string `json:"week_ending"`
			UpdatedAt  string `json:"updated_at"`
			LastEdited string `json:"last_edited,omitempty"`
		}
		return mcpJSON(recordResult{
			PageID:     rec.PageID,
			UpdateID:   rec.UpdateID,
			Project:    rec.CategoryName,
			Team:       rec.Team,
			MultiTeam:  rec.MultiTeam,
			WeekEnding: rec.WeekEnding,
			UpdatedAt:  rec.UpdatedAt,
			LastEdited: rec.LastEdited,
		})
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
