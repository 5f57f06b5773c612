// Package trader turns the research team's plan into a concrete trade
// proposal.
package trader

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/models"
)

const userTemplate = `Based on a comprehensive analysis by a team of analysts, here is an investment plan tailored for {ticker}. It incorporates insights from current technical market trends, macroeconomic indicators and social media sentiment. Use this plan as a foundation for your next trading decision.

Proposed investment plan:
{investment_plan}

Market report:
{market_report}

Social sentiment report:
{sentiment_report}

News report:
{news_report}

Fundamentals report:
{fundamentals_report}`

type Trader struct {
	mem memory.Store
}

func New(mem memory.Store) *Trader { return &Trader{mem: mem} }

func (t *Trader) Name() string   { return consts.Trader }
func (t *Trader) Tier() llm.Tier { return llm.Quick }

func (t *Trader) Tools(*models.AnalysisState) []tool.InvokableTool { return nil }

func (t *Trader) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	vars := agents.ReportVars(state)
	plan := state.SectionText(models.SectionInvestmentPlan)
	if plan == "" {
		plan = "No investment plan was produced; rely on the reports."
	}
	vars["investment_plan"] = plan
	vars["past_memories"] = agents.PastMemories(ctx, t.mem, state, 2)
	return agents.Render(ctx, state, "trader", userTemplate, vars)
}

func (t *Trader) Commit(state *models.AnalysisState, content string) error {
	state.SetSection(models.SectionTraderPlan, content)
	return nil
}
