package capabilities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finsightai/finsight/internal/agent"
	"github.com/finsightai/finsight/pkg/models"
)

// MarketReport renders a comparison report for a set of symbols and attaches
// it to the run as an artifact.
type MarketReport struct {
	source QuoteSource
}

// NewMarketReport creates the capability. A nil source selects the static table.
func NewMarketReport(source QuoteSource) *MarketReport {
	if source == nil {
		source = NewStaticQuoteSource()
	}
	return &MarketReport{source: source}
}

func (m *MarketReport) Name() string {
	return "market_report"
}

func (m *MarketReport) Description() string {
	return "Generate a comparison report for a set of ticker symbols over a period. The report is attached to the conversation as an artifact."
}

func (m *MarketReport) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbols": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 1,
				"description": "Ticker symbols to include"
			},
			"period": {
				"type": "string",
				"enum": ["1d", "1w", "1m", "3m", "1y"],
				"default": "1d",
				"description": "Reporting period"
			}
		},
		"required": ["symbols"]
	}`)
}

func (m *MarketReport) Execute(ctx context.Context, args json.RawMessage) (*agent.CapabilityResult, error) {
	var input struct {
		Symbols []string `json:"symbols"`
		Period  string   `json:"period"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	if input.Period == "" {
		input.Period = "1d"
	}

	var report strings.Builder
	fmt.Fprintf(&report, "Market report (%s) generated %s\n\n", input.Period, time.Now().Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&report, "%-8s %10s %8s %8s %12s\n", "SYMBOL", "PRICE", "CHG", "CHG%", "VOLUME")

	var failed []string
	for _, symbol := range input.Symbols {
		quote, err := m.source.Quote(ctx, symbol)
		if err != nil {
			failed = append(failed, symbol)
			continue
		}
		fmt.Fprintf(&report, "%-8s %10.2f %+8.2f %+7.2f%% %12d\n",
			quote.Symbol, quote.Price, quote.Change, quote.ChangePercent, quote.Volume)
	}
	if len(failed) > 0 {
		fmt.Fprintf(&report, "\nNo data for: %s\n", strings.Join(failed, ", "))
	}

	artifact := models.Artifact{
		ID:       uuid.NewString(),
		Type:     "report",
		MimeType: "text/plain",
		Filename: fmt.Sprintf("market-report-%s.txt", time.Now().Format("20060102-150405")),
	}

	return &agent.CapabilityResult{
		Content:   report.String(),
		Artifacts: []models.Artifact{artifact},
	}, nil
}
