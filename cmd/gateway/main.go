//go:build linux

// Package main provides the CLI entry point for the tool-orchestration
// gateway. The binary is Linux-only: internal/mcpsuper supervises tool
// servers via /proc-based process inspection (spec §5 supplement).
//
// # Basic Usage
//
// Start the server:
//
//	gateway serve --config gateway.yaml
//
// Reset a tool server's recorded failures against a running gateway:
//
//	gateway doctor reset-server weather --addr http://localhost:8080
//
// Validate a configuration file without starting anything:
//
//	gateway config validate --config gateway.yaml
//
// # Environment Variables
//
// A .env file in the working directory is loaded automatically if
// present. Recognized variables include GATEWAY_HOST,
// GATEWAY_HTTP_PORT, DATABASE_URL, JWT_SECRET, MCP_SERVERS_PATH, and the
// LLM_* family (see internal/config).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// defaultConfigPath is used when --config is not given.
const defaultConfigPath = "gateway.yaml"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using system environment variables")
	}

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gateway",
		Short: "Tool-orchestration gateway: interpret, confirm, and execute tool calls against MCP servers",
		Long: `gateway turns a natural-language query into one or more tool calls against
a fleet of MCP tool servers, confirms the plan with the caller, and executes
it once accepted.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildDoctorCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
