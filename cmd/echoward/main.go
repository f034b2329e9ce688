// Echoward: echo/loop detection and mitigation for autonomous producers.
//
// A background monitor that watches streams of generated text, detects
// repetitive, near-duplicate, and circular output patterns, and applies
// graduated interventions to break them. Exposed to AI tooling as an MCP
// server (stdio transport).
//
// Usage:
//
//	echoward serve    # Start the MCP server and the background monitor
//	echoward tick     # Run one detection pass and print the report
//	echoward update   # Update to the latest version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aviarylabs/echoward/internal/config"
	echoserver "github.com/aviarylabs/echoward/internal/server"
	"github.com/aviarylabs/echoward/internal/updater"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "tick":
		if err := runTick(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		runUpdate()
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("echoward v%s\n", echoserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	cfg, limits, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, monitor, cleanup, err := echoserver.New(cfg, limits)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Background version check — prints to stderr so it doesn't
	// interfere with MCP's stdio transport on stdout.
	go checkForUpdates()

	// Graceful shutdown on interrupt: the monitor stops taking ticks
	// and lets the in-flight one drain.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- monitor.Run(ctx)
	}()

	err = server.ServeStdio(s)
	cancel()
	if drainErr := <-monitorDone; drainErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", drainErr)
	}
	return err
}

// runTick performs a single detection pass against the configured
// stores and prints the resulting report as JSON. Useful for cron-style
// deployments and debugging.
func runTick() error {
	cfg, limits, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, monitor, cleanup, err := echoserver.New(cfg, limits)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := monitor.Tick(ctx)
	if err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// checkForUpdates runs a non-blocking version check and prints a notice
// to stderr if an update is available. Best-effort — network failures
// are silently ignored.
func checkForUpdates() {
	result := updater.CheckVersion(echoserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr,
			"\n  Update available: v%s -> v%s\n"+
				"  Run: echoward update\n"+
				"  Release: %s\n\n",
			result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
		)
	}
}

// runUpdate performs a self-update to the latest version.
func runUpdate() {
	fmt.Fprintf(os.Stderr, "Checking for updates...\n")

	result := updater.CheckVersion(echoserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
		return
	}

	fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\n", result.CurrentVersion, result.LatestVersion)
	fmt.Fprintf(os.Stderr, "Downloading...\n")

	if err := updater.SelfUpdate(echoserver.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Update failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "\n  You can download manually from:\n  %s\n", result.ReleaseURL)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s!\n", result.LatestVersion)
	fmt.Fprintf(os.Stderr, "Restart echoward to use the new version.\n")
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Echoward v%s — echo/loop detection and mitigation

Usage:
  echoward serve     Start the MCP server and background monitor (stdio transport)
  echoward tick      Run one detection pass and print the report as JSON
  echoward update    Update to the latest version

Configuration:
  Data and config live under ~/.echoward (override with ECHOWARD_DATA_DIR).
  All detection knobs can be set in config.json or via ECHOWARD_* variables.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "echoward": {
        "command": "echoward",
        "args": ["serve"]
      }
    }
  }
`, echoserver.Version)
}
