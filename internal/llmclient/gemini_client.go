// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// GeminiClient implements schemas.ReasoningClient on the Google Gen AI SDK.
type GeminiClient struct {
	client       *genai.Client
	model        string
	systemPrompt string
	cfg          config.LLMConfig
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// NewGeminiClient initializes the client. cfg.Endpoint overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, systemPrompt string, logger *zap.Logger, opts ...Option) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	o := applyOptions(opts)

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		cc.HTTPOptions.Timeout = genai.Ptr(cfg.APITimeout)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		model:        cfg.Model,
		systemPrompt: SystemPrompt(systemPrompt),
		cfg:          cfg,
		logger:       logger.Named("llm_client.gemini"),
		metrics:      o.metrics,
	}, nil
}

// Decide sends the conversation, the screenshot and the tool catalogue in a
// single generateContent call. No retries are attempted.
func (c *GeminiClient) Decide(ctx context.Context, req schemas.ReasoningRequest) (schemas.Decision, error) {
	contents := c.buildContents(req)
	genConfig := c.buildConfig(req.Tools)

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	duration := time.Since(start)
	if err != nil {
		err = fmt.Errorf("gemini generateContent failed: %w", err)
		c.metrics.ReasoningCompleted(string(config.ProviderGemini), err, duration)
		c.logger.Error("Gemini request failed.", zap.Duration("duration", duration), zap.Error(err))
		return schemas.Decision{}, err
	}

	decision, err := c.parseResponse(resp)
	c.metrics.ReasoningCompleted(string(config.ProviderGemini), err, duration)
	if err != nil {
		c.logger.Warn("Gemini response could not be used.", zap.Error(err))
		return schemas.Decision{}, err
	}

	fields := []zap.Field{zap.Duration("duration", duration), zap.Bool("tool_call", decision.HasInvocation())}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount),
		)
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return decision, nil
}

func (c *GeminiClient) buildConfig(tools []schemas.ToolDefinition) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, geminiDeclaration(t))
		}
		gc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return gc
}

func geminiDeclaration(def schemas.ToolDefinition) *genai.FunctionDeclaration {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(def.Parameters)),
		Required:   def.RequiredParameters(),
	}
	for _, p := range def.Parameters {
		schema.Properties[p.Name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
		}
		schema.PropertyOrdering = append(schema.PropertyOrdering, p.Name)
	}
	return &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  schema,
	}
}

func geminiType(t schemas.ParameterType) genai.Type {
	switch t {
	case schemas.ParameterString:
		return genai.TypeString
	default:
		return genai.TypeString
	}
}

// buildContents maps history onto Gemini roles. Tool results travel as
// function responses in a user turn; the screenshot and instruction form the
// final user turn.
func (c *GeminiClient) buildContents(req schemas.ReasoningRequest) []*genai.Content {
	var contents []*genai.Content
	for _, turn := range req.History {
		switch turn.Role {
		case schemas.RoleUser:
			contents = appendGeminiParts(contents, genai.RoleUser, genai.NewPartFromText(turn.Text))
		case schemas.RoleModel:
			if turn.IsCall() {
				contents = appendGeminiParts(contents, genai.RoleModel,
					genai.NewPartFromFunctionCall(turn.Invocation.Name, turn.Invocation.Args))
			} else {
				contents = appendGeminiParts(contents, genai.RoleModel, genai.NewPartFromText(turn.Text))
			}
		case schemas.RoleTool:
			contents = appendGeminiParts(contents, genai.RoleUser,
				genai.NewPartFromFunctionResponse(turn.ToolName, resultPayload(turn.Result)))
		}
	}

	var current []*genai.Part
	if len(req.Screenshot.Data) > 0 {
		current = append(current, genai.NewPartFromBytes(req.Screenshot.Data, req.Screenshot.MIMEType))
	}
	if req.Instruction != "" {
		current = append(current, genai.NewPartFromText(req.Instruction))
	}
	if len(current) > 0 {
		contents = appendGeminiParts(contents, genai.RoleUser, current...)
	}
	return contents
}

// appendGeminiParts merges consecutive parts from the same role into one content.
func appendGeminiParts(contents []*genai.Content, role genai.Role, parts ...*genai.Part) []*genai.Content {
	if n := len(contents); n > 0 && contents[n-1].Role == string(role) {
		contents[n-1].Parts = append(contents[n-1].Parts, parts...)
		return contents
	}
	return append(contents, genai.NewContentFromParts(parts, role))
}

func (c *GeminiClient) parseResponse(resp *genai.GenerateContentResponse) (schemas.Decision, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return schemas.Decision{}, fmt.Errorf("gemini API blocked the prompt (Reason: %s)", resp.PromptFeedback.BlockReason)
		}
		return schemas.Decision{}, errors.New("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return schemas.Decision{}, fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}

	var texts []string
	var calls []*genai.FunctionCall
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			calls = append(calls, part.FunctionCall)
		case part.Text != "" && !part.Thought:
			texts = append(texts, part.Text)
		}
	}

	if len(calls) == 0 {
		return schemas.Decision{Text: strings.Join(texts, "")}, nil
	}
	if len(calls) > 1 {
		c.logger.Warn("Model returned several function calls; only the first is used.", zap.Int("count", len(calls)))
	}

	call := calls[0]
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return schemas.Decision{
		Text:       strings.Join(texts, ""),
		Invocation: &schemas.ToolInvocation{ID: id, Name: call.Name, Args: args},
	}, nil
}

// -- Options --

// Option customizes a reasoning client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	metrics    *observability.Metrics
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

func applyOptions(opts []Option) clientOptions {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
