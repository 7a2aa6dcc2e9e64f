// File: cmd/run.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a single task and print its events as JSON lines",
		Example: `  webpilot run "Search example.com for pricing"
  webpilot run --max-iterations 5 Open the docs page`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			deps, _, err := initializeSessionDeps(ctx, cfg, logger)
			if err != nil {
				return err
			}

			runTask(ctx, cfg, deps, strings.Join(args, " "), cmd.OutOrStdout())
			return nil
		},
	}
	runCmd.Flags().String("automation-url", "", "base URL of the automation service")
	runCmd.Flags().Int("max-iterations", 0, "iteration budget for the task")
	runCmd.Flags().String("provider", "", "reasoning backend: gemini or openai")
	runCmd.Flags().String("model", "", "model name for the reasoning backend")
	return runCmd
}

// runTask executes task in a fresh session, writing one JSON object per
// event to out. Task failures are reported as events, never as errors.
func runTask(ctx context.Context, cfg config.Interface, deps agent.SessionDeps, task string, out io.Writer) agent.Outcome {
	logger := observability.GetLogger()
	session := agent.NewSession(cfg, deps)
	enc := json.NewEncoder(out)

	outcome, err := session.Run(ctx, task, func(ev schemas.Event) {
		if err := enc.Encode(ev); err != nil {
			logger.Warn("Failed to write event", zap.Error(err))
		}
	})

	fields := []zap.Field{
		zap.String("session_id", session.ID()),
		zap.String("outcome", string(outcome)),
		zap.Int("iterations", session.Iterations()),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fields = append(fields, zap.Error(err))
	}
	logger.Info("Task run complete.", fields...)
	return outcome
}
