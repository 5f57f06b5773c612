// Package managers holds the two judges: the research manager closes the
// investment debate and the portfolio manager closes the risk debate.
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

const researchUserTemplate = `Debate history:
{history}

Analyst reports for reference:

Market: {market_report}

Sentiment: {sentiment_report}

News: {news_report}

Fundamentals: {fundamentals_report}`

// ResearchManager judges the bull/bear debate and writes the investment plan.
type ResearchManager struct {
	coord *debate.Coordinator
	mem   memory.Store
}

func NewResearchManager(coord *debate.Coordinator, mem memory.Store) *ResearchManager {
	return &ResearchManager{coord: coord, mem: mem}
}

func (m *ResearchManager) Name() string           { return m.coord.Judge() }
func (m *ResearchManager) Tier() llm.Tier         { return llm.Deep }
func (m *ResearchManager) Participants() []string { return m.coord.Speakers() }

func (m *ResearchManager) Tools(*models.AnalysisState) []tool.InvokableTool { return nil }

func (m *ResearchManager) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	vars := agents.ReportVars(state)
	vars["history"] = historyOrEmpty(state.InvestDebate.History)
	vars["past_memories"] = agents.PastMemories(ctx, m.mem, state, 2)
	return agents.Render(ctx, state, "managers/research_manager", researchUserTemplate, vars)
}

func (m *ResearchManager) Commit(state *models.AnalysisState, content string) error {
	m.coord.Conclude(state.InvestDebate, content)
	state.SetSection(models.SectionInvestmentPlan, content)
	return nil
}

func historyOrEmpty(h string) string {
	if h == "" {
		return "(no arguments were made; decide from the reports alone)"
	}
	return h
}
