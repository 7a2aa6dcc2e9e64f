// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// OpenAIClient implements schemas.ReasoningClient against any
// OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client       openai.Client
	model        string
	systemPrompt string
	cfg          config.LLMConfig
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewOpenAIClient initializes the client. cfg.Endpoint selects a compatible
// service such as Azure OpenAI or a local gateway.
func NewOpenAIClient(cfg config.LLMConfig, systemPrompt string, logger *zap.Logger, opts ...Option) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	o := applyOptions(opts)

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.APITimeout))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}

	return &OpenAIClient{
		client:       openai.NewClient(reqOpts...),
		model:        cfg.Model,
		systemPrompt: SystemPrompt(systemPrompt),
		cfg:          cfg,
		logger:       logger.Named("llm_client.openai"),
		metrics:      o.metrics,
	}, nil
}

// Decide issues one chat completion with function tools enabled.
func (c *OpenAIClient) Decide(ctx context.Context, req schemas.ReasoningRequest) (schemas.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    c.buildMessages(req),
		Temperature: openai.Float(float64(c.cfg.Temperature)),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(c.cfg.MaxTokens))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(jsonSchemaFor(t)),
			},
		})
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		err = fmt.Errorf("openai chat completion failed: %w", err)
		c.metrics.ReasoningCompleted(string(config.ProviderOpenAI), err, duration)
		c.logger.Error("OpenAI request failed.", zap.Duration("duration", duration), zap.Error(err))
		return schemas.Decision{}, err
	}

	decision, err := c.parseResponse(resp)
	c.metrics.ReasoningCompleted(string(config.ProviderOpenAI), err, duration)
	if err != nil {
		c.logger.Warn("OpenAI response could not be used.", zap.Error(err))
		return schemas.Decision{}, err
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.Duration("duration", duration),
		zap.Bool("tool_call", decision.HasInvocation()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return decision, nil
}

// buildMessages maps history onto chat roles. Tool results reference the ID
// of the call that produced them.
func (c *OpenAIClient) buildMessages(req schemas.ReasoningRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(c.systemPrompt)}

	var lastCallID string
	for _, turn := range req.History {
		switch turn.Role {
		case schemas.RoleUser:
			msgs = append(msgs, openai.UserMessage(turn.Text))
		case schemas.RoleModel:
			if !turn.IsCall() {
				msgs = append(msgs, openai.AssistantMessage(turn.Text))
				continue
			}
			lastCallID = turn.Invocation.ID
			if lastCallID == "" {
				lastCallID = uuid.NewString()
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID: lastCallID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      turn.Invocation.Name,
							Arguments: encodeArgs(turn.Invocation.Args),
						},
					}},
				},
			})
		case schemas.RoleTool:
			payload, _ := json.Marshal(resultPayload(turn.Result))
			msgs = append(msgs, openai.ToolMessage(string(payload), lastCallID))
		}
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	if req.Instruction != "" {
		parts = append(parts, openai.TextContentPart(req.Instruction))
	}
	if len(req.Screenshot.Data) > 0 {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL(req.Screenshot),
			Detail: "auto",
		}))
	}
	if len(parts) > 0 {
		msgs = append(msgs, openai.UserMessage(parts))
	}
	return msgs
}

func (c *OpenAIClient) parseResponse(resp *openai.ChatCompletion) (schemas.Decision, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return schemas.Decision{}, errors.New("openai API returned no choices")
	}
	msg := resp.Choices[0].Message

	if len(msg.ToolCalls) == 0 {
		text := msg.Content
		if text == "" {
			text = msg.Refusal
		}
		return schemas.Decision{Text: text}, nil
	}
	if len(msg.ToolCalls) > 1 {
		c.logger.Warn("Model returned several tool calls; only the first is used.", zap.Int("count", len(msg.ToolCalls)))
	}

	call := msg.ToolCalls[0]
	// Some OpenAI-compatible servers wrap arguments in a markdown fence.
	args, err := llmutil.DecodeArguments(call.Function.Arguments)
	if err != nil {
		return schemas.Decision{}, fmt.Errorf("failed to decode arguments for %s: %w", call.Function.Name, err)
	}
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	return schemas.Decision{
		Text:       msg.Content,
		Invocation: &schemas.ToolInvocation{ID: id, Name: call.Function.Name, Args: args},
	}, nil
}

func encodeArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func dataURL(s schemas.Screenshot) string {
	mime := s.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}
