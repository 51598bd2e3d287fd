// Package providers implements model backend integrations for the Finsight
// research runtime. Each provider adapts one vendor SDK to the agent.ModelProvider
// interface: a single blocking completion call with capability (tool) support,
// automatic retries with exponential backoff, and normalized error reporting.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/pkg/models"
)

// AnthropicProvider adapts Anthropic's Claude API to agent.ModelProvider.
// It is safe for concurrent use; each Complete call is independent.
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig holds configuration for creating an AnthropicProvider.
// All fields except APIKey are optional.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL.
	BaseURL string

	// MaxRetries caps retry attempts for transient failures. Default: 3
	MaxRetries int

	// RetryDelay is the base backoff delay, doubled per attempt. Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request does not name a model.
	DefaultModel string
}

// NewAnthropicProvider creates an Anthropic provider with the given configuration.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends one blocking completion request, retrying transient failures
// with exponential backoff.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (*agent.Completion, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	model := p.getModel(req.Model)
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			// delay = base * 2^(attempt-1)
			backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		msg, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return p.buildCompletion(msg), nil
		}

		lastErr = p.wrapError(err, model)
		if !IsRetryable(lastErr) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("anthropic: max retries exceeded: %w", lastErr)
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}

	// The system prompt rides outside the message list in Anthropic's API.
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: req.System,
			},
		}
	}

	if len(req.Capabilities) > 0 {
		tools, err := p.convertCapabilities(req.Capabilities)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert capabilities: %w", err)
		}
		params.Tools = tools
	}

	return params, nil
}

func (p *AnthropicProvider) buildCompletion(msg *anthropic.Message) *agent.Completion {
	completion := &agent.Completion{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}

	var text strings.Builder
	var thinking strings.Builder
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ThinkingBlock:
			thinking.WriteString(b.Thinking)
		case anthropic.ToolUseBlock:
			completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
				ID:    b.ID,
				Name:  b.Name,
				Input: json.RawMessage(b.Input),
			})
		}
	}
	completion.Text = text.String()
	completion.Thinking = thinking.String()
	return completion
}

// convertMessages translates the conversation history to Anthropic's content
// block format. Tool results become user-role tool_result blocks, and system
// messages are skipped because the system prompt is carried separately.
func (p *AnthropicProvider) convertMessages(messages []*models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid capability call input: %w", err)
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) == 0 {
				continue
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return result, nil
}

func (p *AnthropicProvider) convertCapabilities(capabilities []agent.CapabilitySpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, spec := range capabilities {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", spec.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid schema for %s: missing tool definition", spec.Name)
		}
		toolParam.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, toolParam)
	}

	return result, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := &ProviderError{
			Provider:   "anthropic",
			Model:      model,
			StatusCode: apiErr.StatusCode,
			Cause:      err,
		}
		if raw := apiErr.RawJSON(); raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
				pe.Message = payload.Error.Message
			}
		}
		if pe.Message == "" {
			pe.Message = "anthropic request failed"
		}
		return pe
	}
	return &ProviderError{Provider: "anthropic", Model: model, Cause: err}
}
