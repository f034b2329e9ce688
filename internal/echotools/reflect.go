package echotools

import (
	"context"
	"fmt"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ReflectTool handles the echo_reflect MCP tool.
type ReflectTool struct {
	store *store.Store
}

// NewReflectTool creates a ReflectTool with the given store.
func NewReflectTool(s *store.Store) *ReflectTool {
	return &ReflectTool{store: s}
}

// Definition returns the MCP tool definition for echo_reflect.
func (t *ReflectTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_reflect",
		mcp.WithDescription(
			"Set (or clear) a producer's current reflection pointer — the producer it derives output "+
				"from. Each producer has at most one; the latest write wins. Cycles in these pointers "+
				"are what the monitor reports as reflection loops.",
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("The reflecting producer"),
		),
		mcp.WithString("to",
			mcp.Description("The producer being reflected. Omit to clear the pointer."),
		),
	)
}

// Handle processes the echo_reflect tool call.
func (t *ReflectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	if from == "" {
		return mcp.NewToolResultError("'from' is required"), nil
	}
	to := req.GetString("to", "")

	if to == "" {
		if err := t.store.DeleteEdge(ctx, from); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to clear reflection: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Reflection cleared for %s", from)), nil
	}

	edge := echo.ReflectionEdge{From: from, To: to, ObservedAt: time.Now()}
	if err := t.store.PutEdge(ctx, edge); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record reflection: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reflection recorded: %s -> %s", from, to)), nil
}
