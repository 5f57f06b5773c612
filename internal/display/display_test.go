package display

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/models"
)

func TestRender(t *testing.T) {
	state, err := models.NewAnalysisState("r1", "AAPL", "2025-03-10", market.Classify("AAPL"))
	require.NoError(t, err)
	state.SetSection(models.SectionMarket, "strong uptrend with rising volume")
	state.SetSection(models.SectionFinalDecision, "Recommendation: BUY")
	require.NoError(t, state.SetStatus(consts.MarketAnalyst, models.StatusCompleted))
	require.NoError(t, state.SetStatus(consts.PortfolioManager, models.StatusError))
	state.RiskDebate.Halt()

	out := Render(state, models.Decision{Action: models.ActionBuy, Confidence: 0.8, RiskScore: 0.2},
		Options{MaxSectionChars: 12, ResultsDir: "/tmp/out"})

	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "Market Analysis")
	assert.Contains(t, out, "strong uptre...")
	assert.NotContains(t, out, "News Analysis")
	assert.Contains(t, out, "Market Analyst")
	assert.Contains(t, out, "Portfolio Manager")
	assert.Contains(t, out, "Debate interrupted")
	assert.Contains(t, out, "/tmp/out")
}

func TestProgressPrintsTransitions(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)
	ctx := context.Background()

	p.Notify(ctx, observer.Event{Type: observer.StageStarted, Ticker: "AAPL", Stage: consts.MarketAnalyst})
	p.Notify(ctx, observer.Event{Type: observer.Message, Ticker: "AAPL", Stage: consts.MarketAnalyst,
		Message: schema.AssistantMessage("", []schema.ToolCall{{Function: schema.FunctionCall{Name: "get_candles"}}})})
	p.Notify(ctx, observer.Event{Type: observer.Message, Ticker: "AAPL", Stage: consts.MarketAnalyst,
		Message: schema.AssistantMessage("report", nil)})
	p.Notify(ctx, observer.Event{Type: observer.RunFinished, Ticker: "AAPL", Err: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "[AAPL]")
	assert.Contains(t, out, "Market Analyst")
	assert.Contains(t, out, "calls get_candles")
	assert.NotContains(t, out, "report")
	assert.Contains(t, out, "boom")
}

func TestSummary(t *testing.T) {
	assert.Contains(t, Summary("MSFT", models.NeutralDecision(""), nil), "HOLD")
	assert.Contains(t, Summary("MSFT", models.Decision{}, errors.New("no key")), "no key")
}
