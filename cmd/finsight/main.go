// Package main provides the CLI entry point for the Finsight research runtime.
//
// Finsight answers financial research questions by driving a tool-using
// conversation with an LLM provider (Anthropic or OpenAI) and streaming the
// run's progress to clients over HTTP.
//
// Basic usage:
//
//	finsight serve --config finsight.yaml
//
// Configuration can also come from environment variables:
//
//   - FINSIGHT_CONFIG: path to the configuration file
//   - ANTHROPIC_API_KEY / OPENAI_API_KEY: provider credentials
//   - DATABASE_URL: Postgres connection string (omit for in-memory storage)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "finsight",
		Short:        "Finsight - financial research assistant runtime",
		Long:         "Finsight drives tool-using LLM research runs and serves their live progress over HTTP.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "finsight %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("FINSIGHT_CONFIG"); env != "" {
		return env
	}
	return ""
}
