package echotools

import (
	"context"
	"fmt"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/mark3labs/mcp-go/mcp"
)

// ScanTool handles the echo_scan MCP tool.
type ScanTool struct {
	monitor *echo.Monitor
}

// NewScanTool creates a ScanTool for the given monitor.
func NewScanTool(m *echo.Monitor) *ScanTool {
	return &ScanTool{monitor: m}
}

// Definition returns the MCP tool definition for echo_scan.
func (t *ScanTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_scan",
		mcp.WithDescription(
			"Run one echo detection tick immediately instead of waiting for the next interval, "+
				"and return the resulting report. Interventions fire exactly as they would on a "+
				"scheduled tick.",
		),
	)
}

// Handle processes the echo_scan tool call. The tick runs outside the
// loop's skip guard, so a manual scan may overlap a scheduled tick;
// directive and cooloff writes are idempotent per key, so an overlapped
// pass converges on the same stored state.
func (t *ScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.monitor.Tick(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}
	return jsonResult(report)
}
