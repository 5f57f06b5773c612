package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/models"
)

const reflectionUser = "Analysis under review:\n{analysis}\n\nMarket situation at the time:\n{situation}"

// Reflector turns a finished run and its realized return into lessons stored
// in each role's memory.
type Reflector struct {
	model model.BaseChatModel
	mems  *memory.Registry
	log   *zap.SugaredLogger
}

func NewReflector(m model.BaseChatModel, mems *memory.Registry) *Reflector {
	return &Reflector{model: m, mems: mems, log: logger.With("component", "reflector")}
}

type reflectionTarget struct {
	memory string
	role   string
	text   func(*models.AnalysisState) string
}

var reflectionTargets = []reflectionTarget{
	{memory.BullMemory, "bull researcher's arguments", func(s *models.AnalysisState) string { return s.InvestDebate.BullHistory }},
	{memory.BearMemory, "bear researcher's arguments", func(s *models.AnalysisState) string { return s.InvestDebate.BearHistory }},
	{memory.TraderMemory, "trader's plan", func(s *models.AnalysisState) string { return s.SectionText(models.SectionTraderPlan) }},
	{memory.InvestJudgeMemory, "research manager's investment plan", func(s *models.AnalysisState) string { return s.InvestDebate.JudgeDecision }},
	{memory.RiskJudgeMemory, "portfolio manager's final decision", func(s *models.AnalysisState) string { return s.RiskDebate.JudgeDecision }},
}

// Reflect asks the model to review every role's output given returns, a
// fractional return such as 0.05. Roles that produced nothing are skipped.
// It stops at the first model or memory failure.
func (r *Reflector) Reflect(ctx context.Context, state *models.AnalysisState, returns float64) (int, error) {
	if !r.mems.Enabled() {
		r.log.Infow("memory disabled, skipping reflection", "run_id", state.RunID())
		return 0, nil
	}
	situation := agents.Situation(state)
	if situation == "" {
		situation = fmt.Sprintf("%s on %s", state.Ticker(), state.TradeDate())
	}
	stored := 0
	for _, t := range reflectionTargets {
		analysis := strings.TrimSpace(t.text(state))
		if analysis == "" {
			continue
		}
		lesson, err := r.reflect(ctx, state, t.role, analysis, situation, returns)
		if err != nil {
			return stored, fmt.Errorf("reflect on %s: %w", t.memory, err)
		}
		store, err := r.mems.GetOrCreate(t.memory)
		if err != nil {
			return stored, err
		}
		if err := store.Add(ctx, []memory.Entry{{Situation: situation, Recommendation: lesson}}); err != nil {
			return stored, fmt.Errorf("store lesson in %s: %w", t.memory, err)
		}
		stored++
	}
	r.log.Infow("reflection stored", "run_id", state.RunID(), "ticker", state.Ticker(), "lessons", stored, "returns", returns)
	return stored, nil
}

func (r *Reflector) reflect(ctx context.Context, state *models.AnalysisState, role, analysis, situation string, returns float64) (string, error) {
	msgs, err := agents.Render(ctx, state, "reflection", reflectionUser, map[string]any{
		"role":      role,
		"returns":   fmt.Sprintf("%+.2f%%", returns*100),
		"analysis":  analysis,
		"situation": situation,
	})
	if err != nil {
		return "", err
	}
	resp, err := r.model.Generate(ctx, msgs)
	if err != nil {
		return "", err
	}
	lesson := strings.TrimSpace(resp.Content)
	if lesson == "" {
		return "", fmt.Errorf("empty reflection")
	}
	return lesson, nil
}
