// Package researchers implements the bull and bear sides of the investment
// debate.
package researchers

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/models"
)

const userTemplate = `Debate history so far:
{history}

Last argument from the other side:
{current_response}

Make your argument now.`

// Researcher argues one side of the investment debate.
type Researcher struct {
	node   string
	prompt string
	coord  *debate.Coordinator
	mem    memory.Store
}

// NewBull argues for the investment.
func NewBull(coord *debate.Coordinator, mem memory.Store) *Researcher {
	return &Researcher{node: consts.BullResearcher, prompt: "researchers/bull", coord: coord, mem: mem}
}

// NewBear argues against the investment.
func NewBear(coord *debate.Coordinator, mem memory.Store) *Researcher {
	return &Researcher{node: consts.BearResearcher, prompt: "researchers/bear", coord: coord, mem: mem}
}

func (r *Researcher) Name() string   { return r.node }
func (r *Researcher) Tier() llm.Tier { return llm.Quick }
func (r *Researcher) Debate() string { return r.coord.Name() }

func (r *Researcher) Tools(*models.AnalysisState) []tool.InvokableTool { return nil }

func (r *Researcher) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	d := state.InvestDebate
	vars := agents.ReportVars(state)
	vars["history"] = orNone(d.History)
	vars["current_response"] = orNone(d.CurrentResponse)
	vars["past_memories"] = agents.PastMemories(ctx, r.mem, state, 2)
	return agents.Render(ctx, state, r.prompt, userTemplate, vars)
}

// Commit records the argument through the coordinator, which rejects
// out-of-turn speakers and closes the round after the bear.
func (r *Researcher) Commit(state *models.AnalysisState, content string) error {
	return r.coord.Record(state.InvestDebate, r.node, content)
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}
