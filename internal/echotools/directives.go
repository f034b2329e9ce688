package echotools

import (
	"context"
	"fmt"
	"time"

	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// DirectivesTool handles the echo_directives MCP tool.
type DirectivesTool struct {
	store *store.Store
}

// NewDirectivesTool creates a DirectivesTool with the given store.
func NewDirectivesTool(s *store.Store) *DirectivesTool {
	return &DirectivesTool{store: s}
}

// Definition returns the MCP tool definition for echo_directives.
func (t *DirectivesTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_directives",
		mcp.WithDescription(
			"List unexpired intervention directives. Enforcement layers consume these to modify "+
				"producer behavior; the monitor only records them.",
		),
		mcp.WithString("target_id",
			mcp.Description("Filter to one producer; omit for all targets"),
		),
	)
}

// Handle processes the echo_directives tool call.
func (t *DirectivesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := req.GetString("target_id", "")
	directives, err := t.store.Directives(ctx, target, time.Now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read directives: %v", err)), nil
	}
	if len(directives) == 0 {
		return mcp.NewToolResultText("No active directives."), nil
	}
	return jsonResult(directives)
}
