package capabilities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/pkg/models"
)

// debatePersonas maps persona names to their analytical stance.
var debatePersonas = map[string]string{
	"bull":  "You are an optimistic equity analyst. Argue the strongest reasonable case FOR the position.",
	"bear":  "You are a skeptical equity analyst. Argue the strongest reasonable case AGAINST the position.",
	"quant": "You are a quantitative analyst. Weigh both sides strictly on data and name the deciding metrics.",
}

// debateOrder fixes the speaking order so transcripts are stable.
var debateOrder = []string{"bull", "bear", "quant"}

// AnalystDebate has several analyst personas argue a thesis. Each persona's
// argument streams to the observer as an attributed thinking event, so the
// client can render concurrent reasoning tracks; the returned result is the
// full transcript for the model.
type AnalystDebate struct {
	provider agent.ModelProvider
	model    string
}

// NewAnalystDebate creates the capability using provider for persona turns.
func NewAnalystDebate(provider agent.ModelProvider, model string) *AnalystDebate {
	return &AnalystDebate{provider: provider, model: model}
}

func (d *AnalystDebate) Name() string {
	return "analyst_debate"
}

func (d *AnalystDebate) Description() string {
	return "Have bull, bear, and quant analyst personas debate an investment thesis and return the transcript."
}

func (d *AnalystDebate) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"thesis": {
				"type": "string",
				"description": "The investment thesis to debate, e.g. 'AAPL will outperform the S&P 500 this year'"
			},
			"personas": {
				"type": "array",
				"items": {"type": "string", "enum": ["bull", "bear", "quant"]},
				"description": "Which personas participate; defaults to all three"
			}
		},
		"required": ["thesis"]
	}`)
}

func (d *AnalystDebate) Execute(ctx context.Context, args json.RawMessage) (*agent.CapabilityResult, error) {
	if d.provider == nil {
		return &agent.CapabilityResult{
			Content: "analyst debate is not enabled on this deployment",
			IsError: true,
		}, nil
	}

	var input struct {
		Thesis   string   `json:"thesis"`
		Personas []string `json:"personas"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	personas := input.Personas
	if len(personas) == 0 {
		personas = debateOrder
	}

	emit := agent.EmitterFromContext(ctx)

	var transcript strings.Builder
	fmt.Fprintf(&transcript, "Debate: %s\n", input.Thesis)

	for _, persona := range personas {
		stance, ok := debatePersonas[persona]
		if !ok {
			continue
		}

		prompt := fmt.Sprintf("Thesis under debate: %s\n\nPrior arguments:\n%s\nGive your argument in 2-4 sentences.",
			input.Thesis, transcript.String())

		completion, err := d.provider.Complete(ctx, &agent.CompletionRequest{
			Model:  d.model,
			System: stance,
			Messages: []*models.Message{
				{Role: models.RoleUser, Content: prompt},
			},
			MaxTokens: 512,
		})
		if err != nil {
			return &agent.CapabilityResult{
				Content: fmt.Sprintf("debate aborted during %s turn: %v", persona, err),
				IsError: true,
			}, nil
		}

		argument := strings.TrimSpace(completion.Text)
		emit(models.ThinkingEvent(persona, persona+" analyst", argument))
		fmt.Fprintf(&transcript, "\n[%s] %s\n", persona, argument)
	}

	return &agent.CapabilityResult{Content: transcript.String()}, nil
}
