// Package resources implements MCP resource handlers for the monitor.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (echo://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// Handler manages the monitor's resource endpoints.
type Handler struct {
	monitor *echo.Monitor
	store   *store.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(m *echo.Monitor, s *store.Store) *Handler {
	return &Handler{monitor: m, store: s}
}

// StatusResource returns the MCP resource definition for monitor health.
func (h *Handler) StatusResource() mcp.Resource {
	return mcp.NewResource(
		"echo://monitor/status",
		"Echo Monitor Status",
		mcp.WithResourceDescription("Cumulative tick/error counters, last successful tick, and active configuration"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStatus returns the current monitor health as JSON.
func (h *Handler) HandleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := struct {
		Counters echo.Counters `json:"counters"`
		Config   echo.Config   `json:"config"`
	}{
		Counters: h.monitor.State().Counters(),
		Config:   h.monitor.Config(),
	}
	return jsonContents(req.Params.URI, payload)
}

// AuditResource returns the MCP resource definition for the latest report.
func (h *Handler) AuditResource() mcp.Resource {
	return mcp.NewResource(
		"echo://audit/latest",
		"Latest Echo Report",
		mcp.WithResourceDescription("The most recent monitoring tick that produced findings"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleAudit returns the newest audit entry as JSON.
func (h *Handler) HandleAudit(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	entries, err := h.store.RecentAudit(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	if len(entries) == 0 {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"message": "no echo findings recorded yet"}`,
			},
		}, nil
	}
	return jsonContents(req.Params.URI, entries[0])
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
