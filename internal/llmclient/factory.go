// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// ErrUnsupportedProvider is returned for a provider the factory does not know.
var ErrUnsupportedProvider = errors.New("unsupported LLM provider")

// NewClient creates the reasoning client selected by cfg.LLM().Provider,
// using the configured system prompt or the built-in default.
func NewClient(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts ...Option) (schemas.ReasoningClient, error) {
	llmCfg := cfg.LLM()
	prompt := cfg.Agent().SystemPrompt

	switch llmCfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, llmCfg, prompt, logger, opts...)
	case config.ProviderOpenAI:
		return NewOpenAIClient(llmCfg, prompt, logger, opts...)
	default:
		return nil, fmt.Errorf("%w: '%s'. Supported: [%s, %s]",
			ErrUnsupportedProvider, llmCfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}
