package echotools

import (
	"context"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatusTool handles the echo_status MCP tool.
type StatusTool struct {
	monitor *echo.Monitor
}

// NewStatusTool creates a StatusTool for the given monitor.
func NewStatusTool(m *echo.Monitor) *StatusTool {
	return &StatusTool{monitor: m}
}

// Status is the echo_status payload.
type Status struct {
	Counters echo.Counters        `json:"counters"`
	Trackers []echo.ProducerTrack `json:"trackers,omitempty"`
	Config   echo.Config          `json:"config"`
}

// Definition returns the MCP tool definition for echo_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_status",
		mcp.WithDescription(
			"Show echo monitor health: cumulative tick/error counters, the last successful tick "+
				"timestamp, per-producer intervention trackers, and the active configuration. "+
				"A stale last_success means the monitor is stalled.",
		),
	)
}

// Handle processes the echo_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := t.monitor.State()
	return jsonResult(Status{
		Counters: st.Counters(),
		Trackers: st.Trackers(),
		Config:   t.monitor.Config(),
	})
}
