package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "courier",
	Short:         "Shared coordination log for coding agents",
	Long:          "Courier records agent messages and notes in an append-only event log\nand rebuilds mailbox and notes views from it on demand.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging installs a correlation-aware slog default at the configured level.
func setupLogging(cfg Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := logging.NewCorrelationHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
