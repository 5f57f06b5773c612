package graph_test

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/graph"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/llm/llmtest"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

type noTools struct{}

func (noTools) For(string, market.Info, time.Time) []tool.InvokableTool { return nil }

const extractedSell = `{"action":"SELL","target_price":180,"confidence":0.8,"risk_score":0.6,"reasoning":"Valuation is stretched."}`

// pipelineModel answers every stage with a short SELL recommendation and the
// extraction prompt with JSON. hook, when set, runs before each stage answer
// with the 1-based stage call number.
func pipelineModel(hook func(call int)) *llmtest.ChatModel {
	var (
		mu    sync.Mutex
		calls int
	)
	return llmtest.New(func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
		if len(in) > 0 && strings.Contains(in[0].Content, "into structured data") {
			return schema.AssistantMessage(extractedSell, nil), nil
		}
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if hook != nil {
			hook(n)
		}
		return schema.AssistantMessage("Recommendation: SELL", nil), nil
	})
}

func testConfig(t *testing.T, analysts ...string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.Analysts = analysts
	cfg.LLMRetryBackoff = 0
	cfg.StageTimeout = 5 * time.Second
	cfg.JudgeTimeout = 5 * time.Second
	return cfg
}

func newGraph(t *testing.T, cfg *config.Config, m *llmtest.ChatModel, obs observer.Observer) *graph.TradingGraph {
	t.Helper()
	g, err := graph.New(context.Background(), cfg,
		graph.WithModels(&llm.Models{Quick: m, Deep: m}),
		graph.WithToolkit(noTools{}),
		graph.WithMemory(memory.Disabled()),
		graph.WithObserver(obs),
	)
	require.NoError(t, err)
	return g
}

func newCoordinators(t *testing.T, researchRounds, riskRounds int) (*debate.Coordinator, *debate.Coordinator) {
	t.Helper()
	research, err := debate.NewCoordinator("research", consts.ResearchManager, researchRounds, consts.BullResearcher, consts.BearResearcher)
	require.NoError(t, err)
	risk, err := debate.NewCoordinator("risk", consts.PortfolioManager, riskRounds, consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst)
	require.NoError(t, err)
	return research, risk
}

func newState(t *testing.T) *models.AnalysisState {
	t.Helper()
	st, err := models.NewAnalysisState("run-1", "AAPL", "2025-03-10", market.Classify("AAPL"))
	require.NoError(t, err)
	return st
}

func TestRouterAnalystOrder(t *testing.T) {
	research, risk := newCoordinators(t, 1, 1)
	r, err := graph.NewRouter([]string{"fundamentals", "sentiment", "market"}, research, risk)
	require.NoError(t, err)
	st := newState(t)

	assert.Equal(t, consts.MarketAnalyst, r.First())
	assert.Equal(t, []string{consts.MarketAnalyst, consts.SocialMediaAnalyst, consts.FundamentalsAnalyst}, r.Analysts())
	assert.Equal(t, consts.SocialMediaAnalyst, r.Next(st, consts.MarketAnalyst))
	assert.Equal(t, consts.FundamentalsAnalyst, r.Next(st, consts.SocialMediaAnalyst))
	assert.Equal(t, consts.BullResearcher, r.Next(st, consts.FundamentalsAnalyst), "news analyst is skipped")
}

func TestRouterDebateRotation(t *testing.T) {
	research, risk := newCoordinators(t, 1, 1)
	r, err := graph.NewRouter([]string{"market"}, research, risk)
	require.NoError(t, err)
	st := newState(t)

	require.NoError(t, research.Record(st.InvestDebate, consts.BullResearcher, "up"))
	assert.Equal(t, consts.BearResearcher, r.Next(st, consts.BullResearcher))
	require.NoError(t, research.Record(st.InvestDebate, consts.BearResearcher, "down"))
	assert.Equal(t, consts.ResearchManager, r.Next(st, consts.BearResearcher))
	research.Conclude(st.InvestDebate, "hold")
	assert.Equal(t, consts.Trader, r.Next(st, consts.ResearchManager))

	assert.Equal(t, consts.RiskyAnalyst, r.Next(st, consts.Trader))
	require.NoError(t, risk.Record(st.RiskDebate, consts.RiskyAnalyst, "size up"))
	assert.Equal(t, consts.SafeAnalyst, r.Next(st, consts.RiskyAnalyst))
	require.NoError(t, risk.Record(st.RiskDebate, consts.SafeAnalyst, "size down"))
	assert.Equal(t, consts.NeutralAnalyst, r.Next(st, consts.SafeAnalyst))
	require.NoError(t, risk.Record(st.RiskDebate, consts.NeutralAnalyst, "keep size"))
	assert.Equal(t, consts.PortfolioManager, r.Next(st, consts.NeutralAnalyst))
	risk.Conclude(st.RiskDebate, "hold")
	assert.Equal(t, graph.End, r.Next(st, consts.PortfolioManager))
}

func TestRouterZeroRoundsGoesStraightToJudges(t *testing.T) {
	research, risk := newCoordinators(t, 0, 0)
	r, err := graph.NewRouter([]string{"news"}, research, risk)
	require.NoError(t, err)
	st := newState(t)

	assert.Equal(t, consts.ResearchManager, r.Next(st, consts.NewsAnalyst))
	research.Conclude(st.InvestDebate, "hold")
	assert.Equal(t, consts.PortfolioManager, r.Next(st, consts.Trader))
}

func TestRouterPendingToolCallsStayOnStage(t *testing.T) {
	research, risk := newCoordinators(t, 1, 1)
	r, err := graph.NewRouter([]string{"market", "news"}, research, risk)
	require.NoError(t, err)
	st := newState(t)
	st.AppendMessages(llmtest.ToolCall("c1", "get_candles", `{}`))

	assert.Equal(t, consts.MarketAnalyst, r.Next(st, consts.MarketAnalyst))
}

func TestRouterIsPure(t *testing.T) {
	research, risk := newCoordinators(t, 2, 1)
	r, err := graph.NewRouter([]string{"market"}, research, risk)
	require.NoError(t, err)
	st := newState(t)
	require.NoError(t, research.Record(st.InvestDebate, consts.BullResearcher, "up"))
	before := st.Snapshot()

	for _, node := range append(r.Nodes(), "unknown") {
		first := r.Next(st, node)
		assert.Equal(t, first, r.Next(st, node), node)
	}
	assert.Equal(t, before, st.Snapshot())
	assert.Equal(t, graph.End, r.Next(st, "unknown"))
}

func TestRouterRejectsBadSelection(t *testing.T) {
	research, risk := newCoordinators(t, 1, 1)

	_, err := graph.NewRouter(nil, research, risk)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.ErrorIs(t, err, errors.ErrNoAnalysts)

	_, err = graph.NewRouter([]string{"oracle"}, research, risk)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestNewAcceptsSentimentAlias(t *testing.T) {
	cfg := testConfig(t, "sentiment", "news")
	rec := observer.NewRecording()
	g := newGraph(t, cfg, pipelineModel(nil), rec)

	assert.Equal(t, []string{consts.SocialMediaAnalyst, consts.NewsAnalyst}, g.Analysts())
	assert.Equal(t, []string{"social", "news"}, g.Config().Analysts)
	assert.Equal(t, []string{"sentiment", "news"}, cfg.Analysts, "caller config is not modified")

	st, _, err := g.Propagate(context.Background(), "AAPL", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, st.Status(consts.SocialMediaAnalyst))
}

func TestPropagateFullPipeline(t *testing.T) {
	rec := observer.NewRecording()
	m := pipelineModel(nil)
	g := newGraph(t, testConfig(t, "news", "market"), m, rec)

	st, decision, err := g.Propagate(context.Background(), "aapl", "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, []string{
		consts.MarketAnalyst, consts.NewsAnalyst,
		consts.BullResearcher, consts.BearResearcher, consts.ResearchManager,
		consts.Trader,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst, consts.PortfolioManager,
	}, rec.Visits())

	assert.Equal(t, "AAPL", st.Ticker())
	assert.Equal(t, 1, st.InvestDebate.RoundCount)
	assert.Equal(t, 1, st.RiskDebate.RoundCount)
	assert.True(t, st.InvestDebate.Judged)
	assert.True(t, st.RiskDebate.Judged)
	for _, sec := range []models.Section{
		models.SectionMarket, models.SectionNews, models.SectionInvestmentPlan,
		models.SectionTraderPlan, models.SectionFinalDecision,
	} {
		assert.Equal(t, "Recommendation: SELL", st.SectionText(sec), sec)
	}
	_, ok := st.Section(models.SectionSentiment)
	assert.False(t, ok, "social analyst was not selected")

	for _, node := range rec.Visits() {
		assert.Equal(t, models.StatusCompleted, st.Status(node), node)
	}
	assert.Equal(t, models.StatusPending, st.Status(consts.SocialMediaAnalyst))

	assert.Equal(t, models.ActionSell, decision.Action)
	assert.Equal(t, "USD", decision.Currency)

	events := rec.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, observer.RunStarted, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, observer.RunFinished, last.Type)
	assert.Equal(t, "SELL", last.Detail)
	assert.Equal(t, st.RunID(), last.RunID)
}

func TestPropagateSingleAnalystDepthOne(t *testing.T) {
	cfg := testConfig(t, "market")
	cfg.ResearchDepth = 1
	rec := observer.NewRecording()
	g := newGraph(t, cfg, pipelineModel(nil), rec)

	st, _, err := g.Propagate(context.Background(), "MSFT", "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, []string{
		consts.MarketAnalyst,
		consts.BullResearcher, consts.BearResearcher, consts.ResearchManager,
		consts.Trader,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst, consts.PortfolioManager,
	}, rec.Visits())
	assert.Equal(t, 1, st.InvestDebate.RoundCount)
	assert.Equal(t, 1, st.RiskDebate.RoundCount)
}

func TestPropagateTwoRounds(t *testing.T) {
	cfg := testConfig(t, "market")
	cfg.ResearchDepth = 3
	rec := observer.NewRecording()
	g := newGraph(t, cfg, pipelineModel(nil), rec)

	st, _, err := g.Propagate(context.Background(), "MSFT", "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, []string{
		consts.MarketAnalyst,
		consts.BullResearcher, consts.BearResearcher, consts.BullResearcher, consts.BearResearcher,
		consts.ResearchManager,
		consts.Trader,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst,
		consts.PortfolioManager,
	}, rec.Visits())
	assert.Equal(t, 2, st.InvestDebate.RoundCount)
	assert.Equal(t, 2, st.RiskDebate.RoundCount)
	assert.Equal(t, 4, strings.Count(st.InvestDebate.History, "\n")+1)
}

func TestPropagateZeroRounds(t *testing.T) {
	cfg := testConfig(t, "market")
	cfg.DepthProfiles[1] = config.DepthProfile{DebateRounds: 0, RiskRounds: 0, ToolIterations: 4}
	rec := observer.NewRecording()
	g := newGraph(t, cfg, pipelineModel(nil), rec)

	st, decision, err := g.Propagate(context.Background(), "600519", "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, []string{consts.MarketAnalyst, consts.ResearchManager, consts.Trader, consts.PortfolioManager}, rec.Visits())
	assert.Empty(t, st.InvestDebate.History)
	assert.Empty(t, st.RiskDebate.History)
	assert.Equal(t, 0, st.InvestDebate.RoundCount)
	assert.Equal(t, "Recommendation: SELL", st.InvestDebate.JudgeDecision)
	assert.Equal(t, models.StatusPending, st.Status(consts.BullResearcher))
	assert.Equal(t, "CNY", decision.Currency)
}

func TestPropagateCanceledDuringAnalysts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := observer.NewRecording()
	m := pipelineModel(func(call int) {
		if call == 1 {
			cancel()
		}
	})
	g := newGraph(t, testConfig(t, "market", "news"), m, rec)

	st, decision, err := g.Propagate(ctx, "AAPL", "2025-03-10")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCanceled))
	assert.Equal(t, []string{consts.MarketAnalyst}, rec.Visits())
	_, ok := st.Section(models.SectionFinalDecision)
	assert.False(t, ok)
	assert.Equal(t, models.ActionHold, decision.Action)
}

func TestPropagateCanceledDuringDebateStillJudges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := observer.NewRecording()
	// call 1 is the market analyst, call 2 the bull's opening argument
	m := pipelineModel(func(call int) {
		if call == 2 {
			cancel()
		}
	})
	g := newGraph(t, testConfig(t, "market"), m, rec)

	st, decision, err := g.Propagate(ctx, "AAPL", "2025-03-10")
	require.NoError(t, err)

	assert.Equal(t, []string{
		consts.MarketAnalyst, consts.BullResearcher, consts.ResearchManager, consts.Trader, consts.PortfolioManager,
	}, rec.Visits())
	assert.True(t, st.InvestDebate.Interrupted)
	assert.Equal(t, "Bull Analyst: Recommendation: SELL", st.InvestDebate.History)
	assert.Equal(t, 0, st.InvestDebate.RoundCount)
	assert.True(t, st.RiskDebate.Interrupted)
	assert.Empty(t, st.RiskDebate.History)
	assert.Equal(t, "Recommendation: SELL", st.SectionText(models.SectionFinalDecision))
	assert.Equal(t, models.StatusCompleted, st.Status(consts.BullResearcher))
	assert.Equal(t, models.StatusPending, st.Status(consts.BearResearcher))
	assert.Equal(t, models.ActionSell, decision.Action)
}

func TestPropagateRejectsBadInput(t *testing.T) {
	g := newGraph(t, testConfig(t, "market"), pipelineModel(nil), nil)

	_, _, err := g.Propagate(context.Background(), "AAPL", "10/03/2025")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))

	_, _, err = g.Propagate(context.Background(), "  ", "2025-03-10")
	require.Error(t, err)
}

func TestPortfolioManagerFailureFailsRun(t *testing.T) {
	cfg := testConfig(t, "market")
	cfg.DepthProfiles[1] = config.DepthProfile{DebateRounds: 0, RiskRounds: 0, ToolIterations: 4}
	// market, research manager and trader answer; the portfolio manager's
	// call and its retry fail
	var (
		mu    sync.Mutex
		calls int
	)
	m := llmtest.New(func(context.Context, []*schema.Message) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls > 3 {
			return nil, errors.New("provider down")
		}
		return schema.AssistantMessage("Recommendation: BUY", nil), nil
	})
	g := newGraph(t, cfg, m, nil)

	st, decision, err := g.Propagate(context.Background(), "AAPL", "2025-03-10")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindLLM))
	assert.Equal(t, models.StatusError, st.Status(consts.PortfolioManager))
	assert.Equal(t, models.ActionHold, decision.Action)
}

func hashEmbed(_ context.Context, text string) ([]float32, error) {
	const size = 16
	v := make([]float32, size)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float64
	for i := range v {
		v[i] = float32((hash+i*7)%100+1) / 100.0
		sumSq += float64(v[i] * v[i])
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
	return v, nil
}

func TestReflectStoresLessons(t *testing.T) {
	ctx := context.Background()
	mems := memory.NewInMemoryRegistry(hashEmbed)
	m := llmtest.Text("Trusting momentum into earnings was a mistake; wait for confirmation.")
	reflector := graph.NewReflector(m, mems)

	st := newState(t)
	st.SetSection(models.SectionMarket, "Momentum strong into earnings.")
	st.SetSection(models.SectionTraderPlan, "Buy ahead of earnings.")
	st.InvestDebate.BullHistory = "Bull Analyst: momentum"

	n, err := reflector.Reflect(ctx, st, -0.042)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only roles with output are reviewed")
	assert.Contains(t, m.Inputs()[0][0].Content, "-4.20%")

	store, err := mems.GetOrCreate(memory.TraderMemory)
	require.NoError(t, err)
	matches, err := store.Lookup(ctx, "Momentum strong into earnings.", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Recommendation, "wait for confirmation")

	bear, err := mems.GetOrCreate(memory.BearMemory)
	require.NoError(t, err)
	matches, err = bear.Lookup(ctx, "Momentum strong into earnings.", 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestReflectWithDisabledMemory(t *testing.T) {
	m := llmtest.Text("unused")
	n, err := graph.NewReflector(m, memory.Disabled()).Reflect(context.Background(), newState(t), 0.1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, m.Calls())
}
