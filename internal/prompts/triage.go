// Package prompts implements the MCP prompts for the echo monitor.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// TriagePrompt handles the echo-triage MCP prompt.
// It instructs the AI to pull monitor state and explain what is looping.
type TriagePrompt struct{}

// NewTriagePrompt creates a TriagePrompt.
func NewTriagePrompt() *TriagePrompt {
	return &TriagePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *TriagePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("echo-triage",
		mcp.WithPromptDescription(
			"Triage the current echo situation: which producers are looping, "+
				"how severe it is, and which interventions have fired.",
		),
	)
}

// Handle processes the echo-triage prompt request.
func (p *TriagePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Echo Monitor Triage",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `echo_status` and `echo_report` to inspect the echo monitor.\n\n" +
						"Then:\n" +
						"1. Summarize which producers are stuck in repetition, near-duplicate, or reflection loops\n" +
						"2. Rank them by depth (the deepest echoes first) and note any escalations\n" +
						"3. List the active directives and cooloffs (`echo_directives`, `echo_cooloffs`)\n" +
						"4. Call out anything that looks unhealthy in the counters — failed ticks, source errors, or a stale last_success",
				),
			},
		},
	}, nil
}
