package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/finsightai/finsight/pkg/models"
)

// ExecutorConfig configures the parallel capability executor.
type ExecutorConfig struct {
	// MaxConcurrency limits parallel capability executions.
	// Default: 5
	MaxConcurrency int

	// Timeout bounds a single capability execution.
	// Default: 60s
	Timeout time.Duration

	// ResultBudget is the character budget applied to a single serialized
	// result before it re-enters the conversation.
	// Default: 4000
	ResultBudget int
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		MaxConcurrency: 5,
		Timeout:        60 * time.Second,
		ResultBudget:   4000,
	}
}

// Executor fans one batch of capability invocations out concurrently and
// returns one result per invocation in the original order. Failures are
// isolated per invocation: a panicking or erroring capability becomes an
// error-valued result and never fails its siblings.
type Executor struct {
	registry *CapabilityRegistry
	config   *ExecutorConfig

	sem chan struct{}
}

// NewExecutor creates an executor over the given registry.
// If config is nil, DefaultExecutorConfig is used.
func NewExecutor(registry *CapabilityRegistry, config *ExecutorConfig) *Executor {
	if config == nil {
		config = DefaultExecutorConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ResultBudget <= 0 {
		config.ResultBudget = 4000
	}

	return &Executor{
		registry: registry,
		config:   config,
		sem:      make(chan struct{}, config.MaxConcurrency),
	}
}

// ExecuteAll executes a batch of invocations concurrently and returns one
// result per invocation, order-preserving, plus any artifacts the batch
// produced. The call completes when the slowest invocation finishes.
func (e *Executor) ExecuteAll(ctx context.Context, calls []models.ToolCall) ([]models.ToolResult, []models.Artifact) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]models.ToolResult, len(calls))
	artifacts := make([][]models.Artifact, len(calls))

	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			results[idx], artifacts[idx] = e.executeOne(ctx, tc)
		}(i, calls[i])
	}
	wg.Wait()

	var allArtifacts []models.Artifact
	for _, batch := range artifacts {
		allArtifacts = append(allArtifacts, batch...)
	}
	return results, allArtifacts
}

// executeOne runs a single invocation with timeout and panic isolation.
func (e *Executor) executeOne(ctx context.Context, tc models.ToolCall) (models.ToolResult, []models.Artifact) {
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return errorResult(tc.ID, ctx.Err().Error()), nil
	}

	args := tc.Input
	if !json.Valid(args) || len(args) == 0 {
		// A malformed payload degrades to an empty-argument call rather
		// than aborting the batch.
		args = json.RawMessage(`{}`)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	type outcome struct {
		result *CapabilityResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
			}
		}()
		result, err := e.registry.Execute(execCtx, tc.Name, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return errorResult(tc.ID, out.err.Error()), nil
		}
		if out.result == nil {
			return errorResult(tc.ID, "capability returned no result"), nil
		}
		if out.result.IsError {
			return models.ToolResult{
				ToolCallID: tc.ID,
				Content:    Truncate(out.result.Content, e.config.ResultBudget),
				IsError:    true,
			}, out.result.Artifacts
		}
		return models.ToolResult{
			ToolCallID: tc.ID,
			Content:    Truncate(out.result.Content, e.config.ResultBudget),
		}, out.result.Artifacts
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return errorResult(tc.ID, ctx.Err().Error()), nil
		}
		return errorResult(tc.ID, fmt.Sprintf("execution timed out after %s", e.config.Timeout)), nil
	}
}

// errorResult encodes a failure as a model-visible tool result.
func errorResult(toolCallID, message string) models.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		payload = []byte(`{"error": "capability execution failed"}`)
	}
	return models.ToolResult{
		ToolCallID: toolCallID,
		Content:    string(payload),
		IsError:    true,
	}
}

// Truncate applies the result character budget, preserving both ends of the
// text because leading identifiers and trailing summaries are both commonly
// load-bearing. Text at or under budget is returned verbatim.
func Truncate(text string, budget int) string {
	if budget <= 0 || len(text) <= budget {
		return text
	}
	// Back off to rune boundaries so a multi-byte rune straddling either
	// cut never produces invalid UTF-8.
	head := budget / 2
	for head > 0 && !utf8.RuneStart(text[head]) {
		head--
	}
	tail := len(text) - (budget - budget/2)
	for tail < len(text) && !utf8.RuneStart(text[tail]) {
		tail++
	}
	return fmt.Sprintf("%s...[truncated %d chars]...%s", text[:head], tail-head, text[tail:])
}
