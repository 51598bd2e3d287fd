package capabilities

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/finsightai/finsight/internal/agent"
)

// Runner executes a script in an isolated environment and returns its output.
type Runner interface {
	Run(ctx context.Context, language, source string) (string, error)
}

// RunScript evaluates a short analysis script. Without an injected Runner the
// capability stays registered (so the model can discover it) but every call
// returns a not-enabled error result.
type RunScript struct {
	runner Runner
}

// NewRunScript creates the capability. runner may be nil.
func NewRunScript(runner Runner) *RunScript {
	return &RunScript{runner: runner}
}

func (r *RunScript) Name() string {
	return "run_script"
}

func (r *RunScript) Description() string {
	return "Evaluate a short analysis script and return its output. Use for calculations the other capabilities cannot express."
}

func (r *RunScript) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"language": {
				"type": "string",
				"enum": ["python", "javascript"],
				"default": "python",
				"description": "Script language"
			},
			"source": {
				"type": "string",
				"description": "Script source code"
			}
		},
		"required": ["source"]
	}`)
}

func (r *RunScript) Execute(ctx context.Context, args json.RawMessage) (*agent.CapabilityResult, error) {
	if r.runner == nil {
		return &agent.CapabilityResult{
			Content: "script execution is not enabled on this deployment",
			IsError: true,
		}, nil
	}

	var input struct {
		Language string `json:"language"`
		Source   string `json:"source"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	if input.Language == "" {
		input.Language = "python"
	}

	output, err := r.runner.Run(ctx, input.Language, input.Source)
	if err != nil {
		return &agent.CapabilityResult{
			Content: fmt.Sprintf("script failed: %v", err),
			IsError: true,
		}, nil
	}
	return &agent.CapabilityResult{Content: output}, nil
}
