package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pageoak/bookrag/api"
	"github.com/pageoak/bookrag/internal/observability"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.close()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    app.cfg.OTLPEndpoint,
		ServiceName: app.cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			app.logger.Warn("flushing traces failed", "error", err)
		}
	}()

	addr := serveAddr
	if addr == "" {
		addr = app.cfg.ListenAddr
	}

	server := api.NewServer(
		api.NewHealthHandler(app.index, app.logger.With("component", "api")),
		api.NewRAGHandler(app.orchestrator, app.logger.With("component", "api")),
	)
	return server.Run(ctx, addr)
}
