package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/internal/observability"
	"github.com/finsightai/finsight/pkg/models"
)

// FallbackAnswer is returned when even the forced-summary model call fails.
// It is the last chance to produce any output, so the failure is swallowed.
const FallbackAnswer = "I gathered the requested data but was unable to produce a final summary. " +
	"Please try asking again."

// summaryInstruction is appended when the turn ceiling is reached.
const summaryInstruction = "You have reached the research step limit. Summarize everything " +
	"gathered so far into a final answer. Do not request any further capability calls."

// EngineConfig configures the turn loop engine.
type EngineConfig struct {
	// MaxTurns caps model calls in the main loop. On exhaustion the engine
	// makes exactly one additional capabilities-disabled summary call.
	// Default: 30
	MaxTurns int

	// HistoryLimit is how many recent messages are loaded at run start.
	// Default: 50
	HistoryLimit int

	// MaxTokens is passed through to the provider. Default: 4096
	MaxTokens int

	// Model overrides the provider's default model when set.
	Model string

	// ExecutorConfig configures the capability fan-out.
	ExecutorConfig *ExecutorConfig

	// Logger receives engine diagnostics. Default: slog.Default()
	Logger *slog.Logger

	// Metrics records model and capability telemetry when set.
	Metrics *observability.Metrics
}

func sanitizeEngineConfig(config *EngineConfig) *EngineConfig {
	cfg := EngineConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 30
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.ExecutorConfig == nil {
		cfg.ExecutorConfig = DefaultExecutorConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// Answer is the final output of a run.
type Answer struct {
	Text      string
	Artifacts []models.Artifact
}

// Engine drives one conversation turn sequence: it repeatedly asks the model
// for its next step and executes the capabilities it selects, folding results
// back into the conversation until the model produces a final answer.
//
// The loop is a state machine:
//
//	AWAITING_MODEL --(no invocations)--> DONE
//	AWAITING_MODEL --(invocations)-----> EXECUTING_CAPABILITIES --> AWAITING_MODEL
//	any state --(turn ceiling)---------> FORCED_SUMMARY --> DONE
//	any state --(unrecovered failure)--> ERROR
type Engine struct {
	provider ModelProvider
	registry *CapabilityRegistry
	store    conversations.Store
	executor *Executor
	config   *EngineConfig
}

// NewEngine creates a turn loop engine. If config is nil, defaults are used.
func NewEngine(provider ModelProvider, registry *CapabilityRegistry, store conversations.Store, config *EngineConfig) *Engine {
	config = sanitizeEngineConfig(config)
	if registry == nil {
		registry = NewCapabilityRegistry()
	}
	return &Engine{
		provider: provider,
		registry: registry,
		store:    store,
		executor: NewExecutor(registry, config.ExecutorConfig),
		config:   config,
	}
}

// Execute drives the conversation identified by conversationID to a final
// answer for userMessage, emitting progress events along the way.
//
// The user message, every assistant message, and every tool result are
// persisted as they are produced, so the store reflects progress even if the
// run later fails. The system message is synthesized fresh and never stored.
func (e *Engine) Execute(ctx context.Context, userMessage, conversationID string, emit func(models.RunEvent)) (*Answer, error) {
	if e.provider == nil {
		return nil, ErrNoProvider
	}
	if e.store == nil {
		return nil, ErrNoStore
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, ErrEmptyMessage
	}
	if emit == nil {
		emit = func(models.RunEvent) {}
	}

	ctx = WithEmitter(ctx, emit)
	logger := e.config.Logger.With("conversation_id", conversationID)

	history, err := e.store.GetRecentMessages(ctx, conversationID, e.config.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	specs := e.registry.Specs()
	system := BuildSystemPrompt(time.Now(), specs)

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        userMessage,
		CreatedAt:      time.Now(),
	}
	if err := e.store.AppendMessage(ctx, conversationID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	messages := append(history, userMsg)
	var artifacts []models.Artifact

	for turn := 0; turn < e.config.MaxTurns; turn++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		completion, err := e.callModel(ctx, system, messages, specs)
		if err != nil {
			return nil, &ModelCallError{Turn: turn, Cause: err}
		}

		if completion.Thinking != "" {
			emit(models.ThinkingEvent("assistant", "reasoning", completion.Thinking))
		}

		assistantMsg := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           models.RoleAssistant,
			Content:        completion.Text,
			ToolCalls:      completion.ToolCalls,
			CreatedAt:      time.Now(),
		}
		if err := e.store.AppendMessage(ctx, conversationID, assistantMsg); err != nil {
			return nil, fmt.Errorf("failed to persist assistant message: %w", err)
		}
		messages = append(messages, assistantMsg)

		if len(completion.ToolCalls) == 0 {
			text := StripReasoningMarkup(completion.Text)
			emit(models.TokenEvent(text))
			return &Answer{Text: text, Artifacts: artifacts}, nil
		}

		for _, tc := range completion.ToolCalls {
			emit(models.StatusEvent("running " + tc.Name))
		}
		logger.Debug("executing capabilities", "turn", turn, "count", len(completion.ToolCalls))

		batchArtifacts, err := e.runBatch(ctx, conversationID, completion.ToolCalls, &messages)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, batchArtifacts...)
	}

	// Turn ceiling reached: one final, capabilities-disabled summary call.
	logger.Warn("turn ceiling reached, forcing summary", "max_turns", e.config.MaxTurns)
	emit(models.StatusEvent("summarizing findings"))

	summaryMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        summaryInstruction,
		CreatedAt:      time.Now(),
	}
	messages = append(messages, summaryMsg)

	text := FallbackAnswer
	completion, err := e.callModel(ctx, system, messages, nil)
	if err != nil {
		// The summary call is the last chance to produce output; swallow
		// the failure and fall back.
		logger.Error("forced summary call failed", "error", err)
	} else {
		text = StripReasoningMarkup(completion.Text)
		if strings.TrimSpace(text) == "" {
			text = FallbackAnswer
		}
	}

	finalMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if err := e.store.AppendMessage(ctx, conversationID, finalMsg); err != nil {
		return nil, fmt.Errorf("failed to persist summary message: %w", err)
	}

	emit(models.TokenEvent(text))
	return &Answer{Text: text, Artifacts: artifacts}, nil
}

// callModel performs one provider call with telemetry.
func (e *Engine) callModel(ctx context.Context, system string, messages []*models.Message, specs []CapabilitySpec) (*Completion, error) {
	req := &CompletionRequest{
		Model:        e.config.Model,
		System:       system,
		Messages:     messages,
		Capabilities: specs,
		MaxTokens:    e.config.MaxTokens,
	}

	start := time.Now()
	completion, err := e.provider.Complete(ctx, req)
	if m := e.config.Metrics; m != nil {
		model := e.config.Model
		if model == "" {
			model = "default"
		}
		m.ModelRequestDuration.WithLabelValues(e.provider.Name(), model).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		m.ModelRequestCounter.WithLabelValues(e.provider.Name(), model, status).Inc()
		if completion != nil {
			m.ModelTokensUsed.WithLabelValues(e.provider.Name(), model, "prompt").Add(float64(completion.InputTokens))
			m.ModelTokensUsed.WithLabelValues(e.provider.Name(), model, "completion").Add(float64(completion.OutputTokens))
		}
	}
	return completion, err
}

// runBatch fans out one turn's invocations, persists the tool results, and
// appends them to the in-memory history.
func (e *Engine) runBatch(ctx context.Context, conversationID string, calls []models.ToolCall, messages *[]*models.Message) ([]models.Artifact, error) {
	start := time.Now()
	results, artifacts := e.executor.ExecuteAll(ctx, calls)

	if m := e.config.Metrics; m != nil {
		elapsed := time.Since(start).Seconds()
		for i, res := range results {
			status := "success"
			if res.IsError {
				status = "error"
			}
			m.ToolExecutionCounter.WithLabelValues(calls[i].Name, status).Inc()
			m.ToolExecutionDuration.WithLabelValues(calls[i].Name).Observe(elapsed)
		}
	}

	for _, res := range results {
		toolMsg := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           models.RoleTool,
			Content:        res.Content,
			ToolCallID:     res.ToolCallID,
			CreatedAt:      time.Now(),
		}
		if err := e.store.AppendMessage(ctx, conversationID, toolMsg); err != nil {
			return nil, fmt.Errorf("failed to persist tool result: %w", err)
		}
		*messages = append(*messages, toolMsg)
	}
	return artifacts, nil
}

var reasoningMarkupRe = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

// StripReasoningMarkup removes embedded private-reasoning blocks from a
// final answer. An unclosed block is dropped to the end of the text.
func StripReasoningMarkup(text string) string {
	text = reasoningMarkupRe.ReplaceAllString(text, "")
	if idx := strings.Index(text, "<thinking>"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
