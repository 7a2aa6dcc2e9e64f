// File: cmd/serve.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept operator connections over WebSocket",
		Long: `Starts the HTTP server. Each WebSocket connection on server.ws_path gets its own
agent session; tasks sent on it are executed against the automation service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			deps, metrics, err := initializeSessionDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Server().Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.Server().Addr, err)
			}
			return serve(ctx, ln, cfg, deps, metrics)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().String("automation-url", "", "base URL of the automation service")
	serveCmd.Flags().Int("max-iterations", 0, "iteration budget per task")
	serveCmd.Flags().String("provider", "", "reasoning backend: gemini or openai")
	serveCmd.Flags().String("model", "", "model name for the reasoning backend")
	return serveCmd
}

// serve runs the HTTP server on ln until ctx is cancelled, then drains it
// and closes every operator connection.
func serve(ctx context.Context, ln net.Listener, cfg config.Interface, deps agent.SessionDeps, metrics *observability.Metrics) error {
	logger := observability.GetLogger().Named("server")
	srvCfg := cfg.Server()

	manager := agent.NewWSManager(cfg, deps)
	server := &http.Server{
		Handler:           newRouter(cfg, manager, metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Listening for operator connections.",
			zap.String("addr", ln.Addr().String()),
			zap.String("ws_path", srvCfg.WSPath),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newRouter(cfg config.Interface, manager *agent.WSManager, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealthz)
	r.Get(cfg.Server().WSPath, manager.HandleWS)
	if cfg.Metrics().Enabled && metrics != nil {
		r.Method(http.MethodGet, cfg.Metrics().Path, metrics.Handler())
	}
	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
