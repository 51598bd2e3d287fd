// Package capabilities provides the built-in research capabilities exposed
// to the model: market quotes, report generation, script evaluation, and
// multi-persona debate.
package capabilities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/finsightai/finsight/internal/agent"
)

// Quote is a point-in-time market quote.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	AsOf          time.Time `json:"as_of"`
}

// QuoteSource supplies market quotes. Production wires a data vendor client;
// the default source serves deterministic reference data so the runtime works
// without credentials.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// staticQuoteSource serves a fixed quote table.
type staticQuoteSource struct {
	quotes map[string]Quote
}

func (s *staticQuoteSource) Quote(_ context.Context, symbol string) (*Quote, error) {
	q, ok := s.quotes[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	q.AsOf = time.Now()
	return &q, nil
}

// NewStaticQuoteSource returns a source backed by a small reference table.
func NewStaticQuoteSource() QuoteSource {
	return &staticQuoteSource{quotes: map[string]Quote{
		"AAPL": {Symbol: "AAPL", Price: 229.87, Change: 1.42, ChangePercent: 0.62, Volume: 48123600},
		"MSFT": {Symbol: "MSFT", Price: 512.34, Change: -2.11, ChangePercent: -0.41, Volume: 19887200},
		"GOOG": {Symbol: "GOOG", Price: 204.55, Change: 0.89, ChangePercent: 0.44, Volume: 22456100},
		"AMZN": {Symbol: "AMZN", Price: 231.04, Change: 3.17, ChangePercent: 1.39, Volume: 35671900},
		"SPY":  {Symbol: "SPY", Price: 645.12, Change: 2.03, ChangePercent: 0.32, Volume: 61234500},
	}}
}

// FetchQuote resolves a ticker symbol to its current quote.
type FetchQuote struct {
	source QuoteSource
}

// NewFetchQuote creates the capability. A nil source selects the static table.
func NewFetchQuote(source QuoteSource) *FetchQuote {
	if source == nil {
		source = NewStaticQuoteSource()
	}
	return &FetchQuote{source: source}
}

func (f *FetchQuote) Name() string {
	return "fetch_quote"
}

func (f *FetchQuote) Description() string {
	return "Fetch the current market quote for a ticker symbol, including price, change, and volume."
}

func (f *FetchQuote) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {
				"type": "string",
				"description": "Ticker symbol, e.g. AAPL"
			}
		},
		"required": ["symbol"]
	}`)
}

func (f *FetchQuote) Execute(ctx context.Context, args json.RawMessage) (*agent.CapabilityResult, error) {
	var input struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	quote, err := f.source.Quote(ctx, input.Symbol)
	if err != nil {
		return &agent.CapabilityResult{
			Content: fmt.Sprintf("quote lookup failed: %v", err),
			IsError: true,
		}, nil
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		return nil, fmt.Errorf("encode quote: %w", err)
	}
	return &agent.CapabilityResult{Content: string(payload)}, nil
}
