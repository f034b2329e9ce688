package echotools

import (
	"context"
	"fmt"
	"time"

	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// CooloffsTool handles the echo_cooloffs MCP tool.
type CooloffsTool struct {
	store *store.Store
}

// NewCooloffsTool creates a CooloffsTool with the given store.
func NewCooloffsTool(s *store.Store) *CooloffsTool {
	return &CooloffsTool{store: s}
}

// Definition returns the MCP tool definition for echo_cooloffs.
func (t *CooloffsTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_cooloffs",
		mcp.WithDescription(
			"List producers currently under a cooloff flag. A flagged producer should not be "+
				"treated as healthy until its window passes.",
		),
	)
}

// Handle processes the echo_cooloffs tool call.
func (t *CooloffsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flags, err := t.store.ActiveCooloffs(ctx, time.Now())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read cooloff flags: %v", err)), nil
	}
	if len(flags) == 0 {
		return mcp.NewToolResultText("No producers are cooling off."), nil
	}
	return jsonResult(flags)
}
