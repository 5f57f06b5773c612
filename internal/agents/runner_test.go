package agents_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/agents/analysts"
	"github.com/dyike/cortextrader/internal/agents/managers"
	"github.com/dyike/cortextrader/internal/agents/researchers"
	"github.com/dyike/cortextrader/internal/agents/risk_mgmt"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/llm/llmtest"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/internal/toolloop"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

type staticTools struct {
	tools []tool.InvokableTool
	got   []string
}

func (s *staticTools) For(analyst string, _ market.Info, _ time.Time) []tool.InvokableTool {
	s.got = append(s.got, analyst)
	return s.tools
}

func newState(t *testing.T, ticker string) *models.AnalysisState {
	t.Helper()
	st, err := models.NewAnalysisState("run-1", ticker, "2025-03-10", market.Classify(ticker))
	require.NoError(t, err)
	return st
}

func newRunner(m *llmtest.ChatModel, obs observer.Observer, opts ...agents.RunnerOption) *agents.Runner {
	loop := toolloop.New(toolloop.WithMaxIterations(3), toolloop.WithRetryBackoff(0))
	opts = append(opts, agents.WithObserver(obs))
	return agents.NewRunner(&llm.Models{Quick: m, Deep: m}, loop, opts...)
}

func TestRunAnalystWritesSection(t *testing.T) {
	candles := llmtest.NewTool("get_candles", "date,close\n2025-03-10,45.1")
	tk := &staticTools{tools: []tool.InvokableTool{candles}}
	m := llmtest.Script(
		llmtest.ToolCall("c1", "get_candles", `{"symbol":"600519"}`),
		schema.AssistantMessage("Uptrend intact above the 50-day average.", nil),
	)
	rec := observer.NewRecording()
	st := newState(t, "600519")

	err := newRunner(m, rec).Run(context.Background(), analysts.NewMarketAnalyst(tk), st)
	require.NoError(t, err)

	assert.Equal(t, "Uptrend intact above the 50-day average.", st.SectionText(models.SectionMarket))
	assert.Equal(t, models.StatusCompleted, st.Status(consts.MarketAnalyst))
	assert.Equal(t, []string{consts.AnalystMarket}, tk.got[:1])
	assert.Len(t, st.Messages(), 3, "tool request, tool result and final answer")
	assert.Equal(t, []string{consts.MarketAnalyst}, rec.Visits())

	sys := m.Inputs()[0][0].Content
	assert.Contains(t, sys, "600519")
	assert.Contains(t, sys, "CNY")
	assert.Contains(t, sys, "get_candles")
	assert.Len(t, m.BoundTools(), 1)
}

func TestRunNonCriticalFailureCommitsPlaceholder(t *testing.T) {
	m := llmtest.Failing(stderrors.New("503 upstream"))
	st := newState(t, "AAPL")

	err := newRunner(m, nil).Run(context.Background(), analysts.NewNewsAnalyst(nil), st)
	require.NoError(t, err)

	report := st.SectionText(models.SectionNews)
	assert.Contains(t, report, "analysis incomplete")
	assert.Contains(t, report, "News Analyst")
	assert.Equal(t, models.StatusError, st.Status(consts.NewsAnalyst))
	assert.Equal(t, 2, m.Calls(), "one retry")
	require.NotNil(t, st.LastMessage())
	assert.Equal(t, consts.NewsAnalyst, st.LastMessage().Name)
}

func stageOutcome(t *testing.T, stage, status string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.StageOutcomes.WithLabelValues(stage, status).Write(&m))
	return m.GetCounter().GetValue()
}

func TestRunCountsStageOutcomes(t *testing.T) {
	okBefore := stageOutcome(t, consts.FundamentalsAnalyst, "ok")
	degradedBefore := stageOutcome(t, consts.SocialMediaAnalyst, "degraded")

	st := newState(t, "AAPL")
	require.NoError(t, newRunner(llmtest.Text("Solid balance sheet."), nil).
		Run(context.Background(), analysts.NewFundamentalsAnalyst(nil), st))
	require.NoError(t, newRunner(llmtest.Failing(stderrors.New("502")), nil).
		Run(context.Background(), analysts.NewSocialAnalyst(nil), st))

	assert.Equal(t, okBefore+1, stageOutcome(t, consts.FundamentalsAnalyst, "ok"))
	assert.Equal(t, degradedBefore+1, stageOutcome(t, consts.SocialMediaAnalyst, "degraded"))
}

func TestRunCriticalFailureFailsRun(t *testing.T) {
	coord, err := debate.NewCoordinator("risk", consts.PortfolioManager, 1, consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst)
	require.NoError(t, err)
	st := newState(t, "AAPL")

	err = newRunner(llmtest.Failing(stderrors.New("boom")), nil).
		Run(context.Background(), managers.NewPortfolioManager(coord, memory.Disabled().GetOrNop(memory.RiskJudgeMemory)), st)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindLLM))
	assert.Equal(t, models.StatusError, st.Status(consts.PortfolioManager))
	_, ok := st.Section(models.SectionFinalDecision)
	assert.False(t, ok)
}

func TestRunCanceledContextIsNotAbsorbed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := newState(t, "AAPL")

	err := newRunner(llmtest.Text("unused"), nil).Run(ctx, analysts.NewSocialAnalyst(nil), st)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCanceled))
	_, ok := st.Section(models.SectionSentiment)
	assert.False(t, ok)
}

func TestRunStageTimeoutDegrades(t *testing.T) {
	slow := llmtest.New(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	st := newState(t, "AAPL")

	err := newRunner(slow, nil, agents.WithStageTimeout(20*time.Millisecond)).
		Run(context.Background(), analysts.NewFundamentalsAnalyst(nil), st)
	require.NoError(t, err)
	assert.Contains(t, st.SectionText(models.SectionFundamentals), "timed out")
	assert.Equal(t, models.StatusError, st.Status(consts.FundamentalsAnalyst))
}

func TestRunResearchDebateStatuses(t *testing.T) {
	coord, err := debate.NewCoordinator("research", consts.ResearchManager, 1, consts.BullResearcher, consts.BearResearcher)
	require.NoError(t, err)
	mem := memory.Disabled()
	st := newState(t, "0700.HK")
	ctx := context.Background()

	m := llmtest.Script(
		schema.AssistantMessage("Cloud growth is accelerating.", nil),
		schema.AssistantMessage("Regulation caps the upside.", nil),
		schema.AssistantMessage("Buy with a 420 target.", nil),
	)
	r := newRunner(m, nil)

	require.NoError(t, r.Run(ctx, researchers.NewBull(coord, mem.GetOrNop(memory.BullMemory)), st))
	assert.Equal(t, models.StatusInProgress, st.Status(consts.BullResearcher))
	require.NoError(t, r.Run(ctx, researchers.NewBear(coord, mem.GetOrNop(memory.BearMemory)), st))
	require.NoError(t, r.Run(ctx, managers.NewResearchManager(coord, mem.GetOrNop(memory.InvestJudgeMemory)), st))

	d := st.InvestDebate
	assert.Equal(t, 1, d.RoundCount)
	assert.Equal(t, "Bull Analyst: Cloud growth is accelerating.\nBear Analyst: Regulation caps the upside.", d.History)
	assert.Equal(t, "Buy with a 420 target.", d.JudgeDecision)
	assert.Equal(t, "Buy with a 420 target.", st.SectionText(models.SectionInvestmentPlan))
	for _, node := range []string{consts.BullResearcher, consts.BearResearcher, consts.ResearchManager} {
		assert.Equal(t, models.StatusCompleted, st.Status(node), node)
	}

	bearPrompt := m.Inputs()[1][1].Content
	assert.Contains(t, bearPrompt, "Bull Analyst: Cloud growth is accelerating.")
}

func TestRunOutOfTurnSpeakerFails(t *testing.T) {
	coord, err := debate.NewCoordinator("research", consts.ResearchManager, 1, consts.BullResearcher, consts.BearResearcher)
	require.NoError(t, err)
	st := newState(t, "AAPL")

	err = newRunner(llmtest.Text("I go first"), nil).
		Run(context.Background(), researchers.NewBear(coord, nil), st)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrOutOfTurn)
	assert.Empty(t, st.InvestDebate.History)
}

func TestRiskAnalystPromptBeforeAnyoneSpoke(t *testing.T) {
	coord, err := debate.NewCoordinator("risk", consts.PortfolioManager, 1, consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst)
	require.NoError(t, err)
	st := newState(t, "AAPL")
	st.SetSection(models.SectionTraderPlan, "Buy 100 shares at $190.")

	msgs, err := risk_mgmt.NewRisky(coord).Messages(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Buy 100 shares at $190.")
	assert.Contains(t, msgs[0].Content, "Not available.")
	assert.Contains(t, msgs[1].Content, "(none yet)")
}
