// Command warden is the process entry point for the conversation
// orchestrator: a browser-resident security-analysis agent loop that
// streams from an LLM, dispatches its tool calls, and exposes a small
// consumer API for starting, polling, and aborting conversations.
//
// Start the server:
//
//	warden serve --config warden.yaml
//
// Check configuration and tool wiring:
//
//	warden doctor --config warden.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
