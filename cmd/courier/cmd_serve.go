package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/courierhq/courier/internal/filter"
	"github.com/courierhq/courier/internal/notify"
	"github.com/courierhq/courier/internal/panel"
	"github.com/courierhq/courier/internal/scheduler"
	"github.com/courierhq/courier/internal/streaming"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the courier daemon (panel, snapshotter, notifications)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	matcher, err := filter.NewMatcher()
	if err != nil {
		return fmt.Errorf("create filter matcher: %w", err)
	}

	snapshotter, err := scheduler.NewSnapshotter(log, cfg.SnapshotCadence, cfg.SnapshotThreshold, logger)
	if err != nil {
		return fmt.Errorf("create snapshotter: %w", err)
	}
	if err := snapshotter.Start(ctx); err != nil {
		return fmt.Errorf("start snapshotter: %w", err)
	}
	defer func() { _ = snapshotter.Stop() }()

	if cfg.NtfyTopic != "" {
		publisher := notify.NewNtfyPublisher(cfg.NtfyServer, cfg.NtfyTopic, hub, logger)
		if err := publisher.Start(ctx); err != nil {
			return fmt.Errorf("start ntfy publisher: %w", err)
		}
		defer func() { _ = publisher.Stop() }()
		logger.Info("ntfy publisher started", "topic", cfg.NtfyTopic)
	}

	panelSrv := panel.NewPanelServer(panel.PanelDeps{
		Log:     log,
		Hub:     hub,
		Matcher: matcher,
		Logger:  logger,
	})
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: panelSrv.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("panel listening", "addr", cfg.ListenAddr, "db_path", cfg.DBPath)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("courier stopped")
	return nil
}
