package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marketpulse/internal/dashboard"
	"marketpulse/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh once and serve the market API",
	Long: `Load the configuration, build the market state with one refresh and serve
the HTTP API until SIGINT or SIGTERM.

Examples:
  marketpulse serve
  marketpulse serve --config config/config.yml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	var analyst dashboard.Analyzer
	if a.analyst != nil {
		analyst = a.analyst
	}

	srv, err := dashboard.NewServer(a.cfg.Dashboard, a.log, a.store, analyst, a.collectors)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	if srv == nil {
		return fmt.Errorf("dashboard is disabled; nothing to serve")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	start := time.Now()
	state := a.store.Refresh(ctx)
	logger.LogPerformanceEntry(a.log.WithRefresh(state.RefreshID), "main", "initial_refresh", time.Since(start), logger.Fields{
		"all_live": state.Provenance.AllLive(),
	})

	err = <-errCh
	if ctx.Err() != nil {
		a.log.WithComponent("main").Info("shutdown signal received")
	}
	a.log.Info("marketpulse stopped")
	return err
}
