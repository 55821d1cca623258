package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/streaming"
	"github.com/courierhq/courier/internal/validation"
	"github.com/courierhq/courier/pkg/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the courier tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, closeStore, err := openLog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := streaming.NewMemoryHub()
	log = log.WithHub(hub)

	validator, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return fmt.Errorf("load payload schemas: %w", err)
	}
	matcher, err := filter.NewMatcher()
	if err != nil {
		return fmt.Errorf("create filter matcher: %w", err)
	}

	srv := mcp.NewCourierServer(mcp.CourierServerDeps{
		Log:       log,
		Validator: validator,
		Matcher:   matcher,
		Logger:    logger,
	})

	// Push message.received notifications to connected recipients.
	notifier := mcp.NewMessageNotifier(srv.MCPServer(), srv.Sessions(), hub, logger)
	if err := notifier.Start(ctx); err != nil {
		return fmt.Errorf("start message notifier: %w", err)
	}
	defer func() { _ = notifier.Stop() }()

	return srv.Serve(ctx)
}
