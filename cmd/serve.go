package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"soundshift/internal/playback"
	"soundshift/internal/server"
)

// Serve runs the HTTP API until interrupted. Per-user playback pollers run
// on the server's base context so they outlive individual requests, and are
// stopped as part of graceful shutdown.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	host := r.config.Server.Host
	if v := cmd.String("host"); v != "" {
		host = v
	}
	port := r.config.Server.Port
	if v := cmd.Int("port"); v != 0 {
		port = v
	}

	baseCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := server.NewPlayerRegistry(baseCtx, func(userID string) *playback.Sync {
		return playback.NewSync(r.provider, r.manager, r.repo, userID, r.config.Player, r.logger)
	})
	defer registry.Shutdown()

	api := server.NewAPIHandler(r.manager, r.orchestrator, r.provider, r.repo, registry, r.logger)

	router := server.NewBasicRouter()
	router.Use(
		server.RequestLogger(r.logger),
		server.CORS([]string{
			r.config.Credentials.Spotify.DevOrigin,
			r.config.Credentials.Spotify.ProdOrigin,
		}),
	)
	router.Handler(api)

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting API server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-baseCtx.Done():
		r.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}

	return nil
}
