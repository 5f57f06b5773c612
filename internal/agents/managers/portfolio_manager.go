package managers

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/models"
)

const portfolioUserTemplate = `Risk debate history:
{history}

Give your final decision for {ticker}.`

// PortfolioManager judges the risk debate and issues the final decision. Its
// failure fails the run.
type PortfolioManager struct {
	coord *debate.Coordinator
	mem   memory.Store
}

func NewPortfolioManager(coord *debate.Coordinator, mem memory.Store) *PortfolioManager {
	return &PortfolioManager{coord: coord, mem: mem}
}

func (m *PortfolioManager) Name() string           { return m.coord.Judge() }
func (m *PortfolioManager) Tier() llm.Tier         { return llm.Deep }
func (m *PortfolioManager) Critical() bool         { return true }
func (m *PortfolioManager) Participants() []string { return m.coord.Speakers() }

func (m *PortfolioManager) Tools(*models.AnalysisState) []tool.InvokableTool { return nil }

func (m *PortfolioManager) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	vars := map[string]any{
		"history":         historyOrEmpty(state.RiskDebate.History),
		"trader_plan":     state.SectionText(models.SectionTraderPlan),
		"investment_plan": state.SectionText(models.SectionInvestmentPlan),
		"past_memories":   agents.PastMemories(ctx, m.mem, state, 2),
	}
	return agents.Render(ctx, state, "managers/portfolio_manager", portfolioUserTemplate, vars)
}

func (m *PortfolioManager) Commit(state *models.AnalysisState, content string) error {
	m.coord.Conclude(state.RiskDebate, content)
	state.SetSection(models.SectionFinalDecision, content)
	return nil
}
