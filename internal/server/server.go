// Package server wires all components and creates the MCP server plus
// the background monitor.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools/prompts/resources that depend on
// abstractions. No business logic lives here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/aviarylabs/echoward/internal/config"
	"github.com/aviarylabs/echoward/internal/echo"
	"github.com/aviarylabs/echoward/internal/echotools"
	"github.com/aviarylabs/echoward/internal/escalation"
	"github.com/aviarylabs/echoward/internal/prompts"
	"github.com/aviarylabs/echoward/internal/resources"
	"github.com/aviarylabs/echoward/internal/source"
	"github.com/aviarylabs/echoward/internal/store"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server, the durable store, and the echo monitor,
// with all tools, prompts and resources registered.
//
// The returned cleanup function closes the store and the log-file
// watcher and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call.
func New(cfg config.Config, limits config.Limits) (*server.MCPServer, *echo.Monitor, func(), error) {
	// --- Durable store ---

	st, err := store.New(store.Config{
		DataDir:         cfg.DataDir,
		MaxAuditEntries: limits.MaxAuditEntries,
	})
	if err != nil {
		return nil, nil, noop, fmt.Errorf("creating store: %w", err)
	}

	// --- Sample sources ---
	//
	// Agent and reflector output comes out of the store; message-stream
	// samples come from JSONL log files. A missing log directory is a
	// first-class "unavailable" outcome, so the monitor starts fine on
	// an empty deployment.

	logs := source.NewFileSource(cfg.MessageLogDir)
	samples := source.NewAdapter(
		source.NewStoreSource(st, echo.KindAgent),
		source.NewStoreSource(st, echo.KindReflector),
		logs,
	)

	// --- Escalation sink ---

	var sink echo.Sink = escalation.NewLogSink()
	if cfg.EscalationURL != "" {
		sink = escalation.NewWebhookSink(cfg.EscalationURL)
	}

	// --- Monitor ---

	monitor, err := echo.NewMonitor(cfg.Monitor, echo.Deps{
		Samples:    samples,
		Edges:      st,
		Directives: st,
		Cooloffs:   st,
		Audit:      st,
		Sink:       sink,
	})
	if err != nil {
		closeStore(st)
		return nil, nil, noop, fmt.Errorf("creating monitor: %w", err)
	}

	cleanup := func() {
		if err := logs.Close(); err != nil {
			log.Printf("WARNING: log source close: %v", err)
		}
		closeStore(st)
	}

	// --- MCP server ---

	s := server.NewMCPServer(
		"echoward",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register ingestion tools ---

	ingestTool := echotools.NewIngestTool(st)
	s.AddTool(ingestTool.Definition(), ingestTool.Handle)

	reflectTool := echotools.NewReflectTool(st)
	s.AddTool(reflectTool.Definition(), reflectTool.Handle)

	// --- Register inspection tools ---

	statusTool := echotools.NewStatusTool(monitor)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	reportTool := echotools.NewReportTool(st)
	s.AddTool(reportTool.Definition(), reportTool.Handle)

	directivesTool := echotools.NewDirectivesTool(st)
	s.AddTool(directivesTool.Definition(), directivesTool.Handle)

	cooloffsTool := echotools.NewCooloffsTool(st)
	s.AddTool(cooloffsTool.Definition(), cooloffsTool.Handle)

	scanTool := echotools.NewScanTool(monitor)
	s.AddTool(scanTool.Definition(), scanTool.Handle)

	// --- Register prompts ---

	triagePrompt := prompts.NewTriagePrompt()
	s.AddPrompt(triagePrompt.Definition(), triagePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(monitor, st)
	s.AddResource(resourceHandler.StatusResource(), resourceHandler.HandleStatus)
	s.AddResource(resourceHandler.AuditResource(), resourceHandler.HandleAudit)

	return s, monitor, cleanup, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		log.Printf("WARNING: store close: %v", err)
	}
}

// noop is a no-op cleanup function used when initialization fails.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the echo monitor effectively.
func serverInstructions() string {
	return `You have access to echoward, an echo/loop detection monitor for autonomous producers.

## WHEN TO USE echoward

- Report every generated output with echo_ingest so loops are caught early.
- Record "derives output from" relationships with echo_reflect; cycles in
  these pointers are reflection loops and will be broken automatically.
- When producers seem stuck, repetitive, or are copying each other, run
  echo_status and echo_report (or the echo-triage prompt) to see what the
  monitor has found and which interventions fired.
- Use echo_scan to force an immediate detection pass instead of waiting
  for the next interval.

## WHAT THE MONITOR DOES

Every interval it scans recent samples for exact repetition, near-duplicate
output, and reflection cycles, then writes intervention directives
(inject_randomness, shift_context, invert_reflection, impose_silence, or
escalate) for the enforcement layer, plus cooloff flags for the producers
involved. Directives are advisory records: echoward never blocks a producer
itself.`
}
