package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// jsonOnlyDirective is appended to the system prompt when a request sets
// JSONOnly. gollm exposes no response-format control, so the constraint
// travels in the prompt.
const jsonOnlyDirective = "You must respond with exactly one JSON object and nothing else: no prose, no markdown fences."

// GollmAdapter implements ProviderAdapter on top of a gollm.LLM instance.
type GollmAdapter struct {
	provider string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	extraOpts   []gollm.ConfigOption
}

// WithAPIKey sets the API key for the adapter.
func WithAPIKey(key string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.apiKey = key
	}
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates an adapter for the given provider. An empty apiKey
// lets gollm read credentials from its environment variables.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		apiKey:      apiKey,
		maxTokens:   4096,
		temperature: 0.5,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // retries belong to the Client
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	backend, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmAdapter{provider: provider, llm: backend, model: model}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance.
func NewGollmAdapterFromLLM(provider string, backend gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, llm: backend}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}

	model := req.Model
	if model == "" {
		model = a.model
	}
	return &Response{
		ID:    "resp_" + uuid.New().String()[:8],
		Model: model,
		Text:  text,
	}, nil
}

// translateRequest flattens the ordered messages into a gollm Prompt: system
// turns become the system prompt, assistant turns are labeled inline so the
// model sees its own prior steps and the synthesized observations in order.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var systemPrompt string
	var turns []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt += msg.Content + "\n"
		case RoleUser:
			turns = append(turns, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				turns = append(turns, "[Assistant]: "+msg.Content)
			}
		}
	}

	promptText := strings.Join(turns, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	if req.JSONOnly {
		systemPrompt = strings.TrimSpace(systemPrompt) + "\n\n" + jsonOnlyDirective
	}

	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(systemPrompt), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// translateError classifies a gollm failure into the error taxonomy. gollm
// surfaces provider failures as flat errors, so classification inspects the
// message text.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	msgLower := strings.ToLower(msg)
	switch {
	case strings.Contains(msgLower, "401") || strings.Contains(msgLower, "unauthorized") || strings.Contains(msgLower, "invalid api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 401,
		}}
	case strings.Contains(msgLower, "429") || strings.Contains(msgLower, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msgLower, "context length") || strings.Contains(msgLower, "too many tokens"):
		return &ContextLengthError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 413,
		}}
	case strings.Contains(msgLower, "400") || strings.Contains(msgLower, "invalid request"):
		return &InvalidRequestError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 400,
		}}
	case strings.Contains(msgLower, "500") || strings.Contains(msgLower, "502") || strings.Contains(msgLower, "503") || strings.Contains(msgLower, "internal server"):
		return &ServerError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, StatusCode: 500, Retryable: true,
		}}
	case strings.Contains(msgLower, "timeout") || strings.Contains(msgLower, "deadline exceeded"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(msgLower, "connection refused") || strings.Contains(msgLower, "no such host"):
		return &NetworkError{SDKError: SDKError{Message: msg, Cause: err}}
	default:
		// Unknown failures are retryable provider errors.
		return &ProviderError{
			SDKError:  SDKError{Message: msg, Cause: err},
			Provider:  a.provider,
			Retryable: true,
		}
	}
}
