package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/pkg/models"
)

// OpenAIProvider adapts OpenAI's chat completion API to agent.ModelProvider.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// OpenAIConfig holds configuration for creating an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL, for proxies and
	// OpenAI-compatible backends.
	BaseURL string

	// MaxRetries caps retry attempts for transient failures. Default: 3
	MaxRetries int

	// RetryDelay is the base backoff delay, doubled per attempt. Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request does not name a model.
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider with the given configuration.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	var client *openai.Client
	if config.BaseURL != "" {
		clientConfig := openai.DefaultConfig(config.APIKey)
		clientConfig.BaseURL = config.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(config.APIKey)
	}

	return &OpenAIProvider{
		client:       client,
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete sends one blocking chat completion request, retrying transient
// failures with exponential backoff.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	model := p.getModel(req.Model)

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  p.convertMessages(req.Messages, req.System),
		MaxTokens: req.MaxTokens,
	}
	if len(req.Capabilities) > 0 {
		chatReq.Tools = p.convertCapabilities(req.Capabilities)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return p.buildCompletion(&resp)
		}

		lastErr = p.wrapError(err, model)
		if !IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
}

func (p *OpenAIProvider) buildCompletion(resp *openai.ChatCompletionResponse) (*agent.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Model: resp.Model, Message: "response contained no choices"}
	}
	choice := resp.Choices[0]

	completion := &agent.Completion{
		Text:         choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return completion, nil
}

// convertMessages translates the conversation history to OpenAI's chat format.
// The system prompt leads the message list, and tool results use the tool role
// linked to the originating call via ToolCallID.
func (p *OpenAIProvider) convertMessages(messages []*models.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	return result
}

func (p *OpenAIProvider) convertCapabilities(capabilities []agent.CapabilitySpec) []openai.Tool {
	result := make([]openai.Tool, len(capabilities))
	for i, spec := range capabilities {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		}
	}
	return result
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "openai",
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
	}
	return &ProviderError{Provider: "openai", Model: model, Cause: err}
}
