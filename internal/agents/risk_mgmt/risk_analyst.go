// Package risk_mgmt implements the three voices of the risk debate.
package risk_mgmt

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/models"
)

const userTemplate = `Risk debate history so far:
{history}

Latest argument from the risky analyst:
{current_risky_response}

Latest argument from the safe analyst:
{current_safe_response}

Latest argument from the neutral analyst:
{current_neutral_response}

If an analyst has not spoken yet, present your own view without inventing theirs. Make your argument now.`

// RiskAnalyst is one of the risky, safe and neutral debaters.
type RiskAnalyst struct {
	node   string
	prompt string
	coord  *debate.Coordinator
}

func NewRisky(coord *debate.Coordinator) *RiskAnalyst {
	return &RiskAnalyst{node: consts.RiskyAnalyst, prompt: "risk_mgmt/risky", coord: coord}
}

func NewSafe(coord *debate.Coordinator) *RiskAnalyst {
	return &RiskAnalyst{node: consts.SafeAnalyst, prompt: "risk_mgmt/safe", coord: coord}
}

func NewNeutral(coord *debate.Coordinator) *RiskAnalyst {
	return &RiskAnalyst{node: consts.NeutralAnalyst, prompt: "risk_mgmt/neutral", coord: coord}
}

func (r *RiskAnalyst) Name() string   { return r.node }
func (r *RiskAnalyst) Tier() llm.Tier { return llm.Quick }
func (r *RiskAnalyst) Debate() string { return r.coord.Name() }

func (r *RiskAnalyst) Tools(*models.AnalysisState) []tool.InvokableTool { return nil }

func (r *RiskAnalyst) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	d := state.RiskDebate
	vars := agents.ReportVars(state)
	vars["trader_plan"] = state.SectionText(models.SectionTraderPlan)
	vars["history"] = orNone(d.History)
	vars["current_risky_response"] = orNone(d.CurrentRiskyResponse)
	vars["current_safe_response"] = orNone(d.CurrentSafeResponse)
	vars["current_neutral_response"] = orNone(d.CurrentNeutralResponse)
	return agents.Render(ctx, state, r.prompt, userTemplate, vars)
}

func (r *RiskAnalyst) Commit(state *models.AnalysisState, content string) error {
	return r.coord.Record(state.RiskDebate, r.node, content)
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}
