package processing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

const decisionShape = `{"action": "BUY | HOLD | SELL", "target_price": 123.45, "confidence": 0.0, "risk_score": 0.0, "reasoning": "..."}`

const extractionSystemPrompt = `You convert a portfolio manager's final recommendation for {ticker} into structured data.
The stock trades on the {market_name} market and prices are quoted in {currency} ({currency_symbol}).

Reply with exactly one JSON object and nothing else, shaped like:
{decision_shape}

Rules:
- action is one of BUY, HOLD, SELL.
- target_price is a number in {currency}, or null when the text gives none.
- confidence and risk_score are numbers between 0 and 1.
- reasoning is a short summary of the rationale.`

// SignalProcessor turns the portfolio manager's free text into a Decision.
type SignalProcessor struct {
	model   model.BaseChatModel
	timeout time.Duration
	log     *zap.SugaredLogger
}

type Option func(*SignalProcessor)

func WithTimeout(d time.Duration) Option {
	return func(p *SignalProcessor) { p.timeout = d }
}

// NewSignalProcessor uses m for the structured phase. A nil model skips
// straight to pattern matching.
func NewSignalProcessor(m model.BaseChatModel, opts ...Option) *SignalProcessor {
	p := &SignalProcessor{
		model:   m,
		timeout: time.Minute,
		log:     logger.With("component", "signal_processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process always returns a valid Decision. Structured extraction failures
// degrade to the pattern fallback and are only logged.
func (p *SignalProcessor) Process(ctx context.Context, raw string, info market.Info) (d models.Decision) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("signal processing panicked, using fallback", "panic", r)
			d = fallbackDecision(raw, info)
		}
		metrics.SignalExtractions.WithLabelValues(d.Source, string(d.Action)).Inc()
	}()

	if p.model != nil {
		structured, err := p.structured(ctx, raw, info)
		if err == nil {
			return structured
		}
		p.log.Warnw("structured extraction failed, using fallback",
			"ticker", info.Ticker, "error", errors.Wrap(errors.KindExtraction, "processing.structured", err))
	}
	return fallbackDecision(raw, info)
}

// ProcessTicker classifies ticker before processing.
func (p *SignalProcessor) ProcessTicker(ctx context.Context, raw, ticker string) models.Decision {
	return p.Process(ctx, raw, market.Classify(ticker))
}

func (p *SignalProcessor) structured(ctx context.Context, raw string, info market.Info) (models.Decision, error) {
	if strings.TrimSpace(raw) == "" {
		return models.Decision{}, errors.ErrEmptyResponse
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tmpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(extractionSystemPrompt),
		schema.UserMessage("{recommendation}"),
	)
	msgs, err := tmpl.Format(ctx, map[string]any{
		"ticker":          info.Ticker,
		"market_name":     info.Name,
		"currency":        info.Currency,
		"currency_symbol": info.CurrencySymbol,
		"decision_shape":  decisionShape,
		"recommendation":  raw,
	})
	if err != nil {
		return models.Decision{}, fmt.Errorf("format extraction prompt: %w", err)
	}

	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return models.Decision{}, errors.Wrap(errors.KindLLM, "processing.generate", err)
	}
	if resp == nil {
		return models.Decision{}, errors.ErrEmptyResponse
	}
	js, ok := extractJSONObject(resp.Content)
	if !ok {
		return models.Decision{}, errors.ErrNoJSON
	}
	return parseStructured(js, raw, info)
}
