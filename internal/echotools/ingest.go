package echotools

import (
	"context"
	"fmt"
	"time"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/store"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// IngestTool handles the echo_ingest MCP tool.
type IngestTool struct {
	store *store.Store
}

// NewIngestTool creates an IngestTool with the given store.
func NewIngestTool(s *store.Store) *IngestTool {
	return &IngestTool{store: s}
}

// Definition returns the MCP tool definition for echo_ingest.
func (t *IngestTool) Definition() mcp.Tool {
	return mcp.NewTool("echo_ingest",
		mcp.WithDescription(
			"Record one content sample for echo monitoring. Producers should report every generated "+
				"output here; the monitor scans recent samples for repetition and near-duplicates.",
		),
		mcp.WithString("producer_id",
			mcp.Required(),
			mcp.Description("Stable identifier of the producer that generated the text"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The generated text. Empty text is accepted and tracked as degenerate output."),
		),
		mcp.WithString("kind",
			mcp.Description("Sample kind: agent (default), message, or reflector"),
		),
		mcp.WithString("id",
			mcp.Description("Optional sample id; a UUID is assigned when omitted"),
		),
		mcp.WithString("observed_at",
			mcp.Description("Optional RFC 3339 observation time; defaults to now"),
		),
	)
}

// Handle processes the echo_ingest tool call.
func (t *IngestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	producerID := req.GetString("producer_id", "")
	if producerID == "" {
		return mcp.NewToolResultError("'producer_id' is required"), nil
	}

	kind := echo.ProducerKind(req.GetString("kind", string(echo.KindAgent)))
	if !kind.IsValid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind %q (want agent, message, or reflector)", kind)), nil
	}

	observedAt := time.Now()
	if raw := req.GetString("observed_at", ""); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid observed_at: %v", err)), nil
		}
		observedAt = parsed
	}

	sample := echo.ContentSample{
		ID:         req.GetString("id", uuid.NewString()),
		ProducerID: producerID,
		Kind:       kind,
		Text:       req.GetString("text", ""),
		ObservedAt: observedAt,
	}
	if err := t.store.PutSample(ctx, sample); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to record sample: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Sample recorded: %s (%s, producer %s)", sample.ID, sample.Kind, producerID)), nil
}
