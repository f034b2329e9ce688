package echotools

import (
	"context"
	"fmt"

	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReportTool handles the echo_report MCP tool.
type ReportTool struct {
	store *store.Store
}

// NewReportTool creates a ReportTool with the given store.
func NewReportTool(s *store.Store) *ReportTool {
	return &ReportTool{store: s}
}

// Definition returns the MCP tool definition for echo_report.
func (t *ReportTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_report",
		mcp.WithDescription(
			"Show recent echo reports from the rolling audit log, newest first. Each entry is one "+
				"monitoring tick that produced findings.",
		),
		mcp.WithNumber("limit",
			mcp.Description("How many entries to return (default 10)"),
		),
	)
}

// Handle processes the echo_report tool call.
func (t *ReportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 10)
	entries, err := t.store.RecentAudit(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read audit log: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No echo findings recorded yet."), nil
	}
	return jsonResult(entries)
}
