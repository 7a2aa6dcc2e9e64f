// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/automation"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmclient"
	"github.com/xkilldash9x/webpilot/internal/network"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/tools"
)

// initializeSessionDeps builds the process-wide collaborators shared by every
// session. Metrics is nil when metrics are disabled.
func initializeSessionDeps(ctx context.Context, cfg config.Interface, logger *zap.Logger) (agent.SessionDeps, *observability.Metrics, error) {
	var metrics *observability.Metrics
	if cfg.Metrics().Enabled {
		metrics = observability.NewMetrics(cfg.Metrics().Namespace)
	}

	// Both backends share one pooled client.
	httpClient := network.NewClient(network.NewDefaultClientConfig(logger))

	reasoner, err := llmclient.NewClient(ctx, cfg, logger,
		llmclient.WithHTTPClient(httpClient),
		llmclient.WithMetrics(metrics),
	)
	if err != nil {
		return agent.SessionDeps{}, nil, fmt.Errorf("failed to initialize reasoning backend: %w", err)
	}

	browser := automation.NewClient(cfg.Automation(), logger,
		automation.WithHTTPClient(httpClient),
		automation.WithMetrics(metrics),
	)

	logger.Info("Agent components initialized.",
		zap.String("provider", string(cfg.LLM().Provider)),
		zap.String("model", cfg.LLM().Model),
		zap.String("automation_url", cfg.Automation().BaseURL),
		zap.Int("max_iterations", cfg.Agent().MaxIterations),
	)

	return agent.SessionDeps{
		Reasoner:   reasoner,
		Automation: browser,
		Registry:   tools.Default(),
		Logger:     logger,
		Metrics:    metrics,
	}, metrics, nil
}
