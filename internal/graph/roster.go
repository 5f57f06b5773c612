package graph

import (
	"fmt"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/agents/analysts"
	"github.com/dyike/cortextrader/internal/agents/managers"
	"github.com/dyike/cortextrader/internal/agents/researchers"
	"github.com/dyike/cortextrader/internal/agents/risk_mgmt"
	"github.com/dyike/cortextrader/internal/agents/trader"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/memory"
)

const (
	researchDebate = "research"
	riskDebate     = "risk"
)

// Roster is the set of stages one pipeline configuration runs, keyed by
// node name, plus the two debates they take part in.
type Roster struct {
	Stages   map[string]agents.Stage
	Research *debate.Coordinator
	Risk     *debate.Coordinator
	Router   *Router
}

// NewRoster builds every stage for the selected analysts and depth profile.
// A nil memory registry behaves like a disabled one.
func NewRoster(selected []string, profile config.DepthProfile, tk agents.ToolProvider, mems *memory.Registry) (*Roster, error) {
	if mems == nil {
		mems = memory.Disabled()
	}
	research, err := debate.NewCoordinator(researchDebate, consts.ResearchManager, profile.DebateRounds,
		consts.BullResearcher, consts.BearResearcher)
	if err != nil {
		return nil, err
	}
	risk, err := debate.NewCoordinator(riskDebate, consts.PortfolioManager, profile.RiskRounds,
		consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst)
	if err != nil {
		return nil, err
	}
	router, err := NewRouter(selected, research, risk)
	if err != nil {
		return nil, err
	}

	mem := func(name string) (memory.Store, error) {
		s, err := mems.GetOrCreate(name)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", name, err)
		}
		return s, nil
	}
	bullMem, err := mem(memory.BullMemory)
	if err != nil {
		return nil, err
	}
	bearMem, err := mem(memory.BearMemory)
	if err != nil {
		return nil, err
	}
	traderMem, err := mem(memory.TraderMemory)
	if err != nil {
		return nil, err
	}
	investMem, err := mem(memory.InvestJudgeMemory)
	if err != nil {
		return nil, err
	}
	riskMem, err := mem(memory.RiskJudgeMemory)
	if err != nil {
		return nil, err
	}

	stages := []agents.Stage{
		researchers.NewBull(research, bullMem),
		researchers.NewBear(research, bearMem),
		managers.NewResearchManager(research, investMem),
		trader.New(traderMem),
		risk_mgmt.NewRisky(risk),
		risk_mgmt.NewSafe(risk),
		risk_mgmt.NewNeutral(risk),
		managers.NewPortfolioManager(risk, riskMem),
	}
	for _, a := range config.NormalizeAnalysts(selected) {
		if an, ok := analysts.New(a, tk); ok {
			stages = append(stages, an)
		}
	}

	r := &Roster{
		Stages:   make(map[string]agents.Stage, len(stages)),
		Research: research,
		Risk:     risk,
		Router:   router,
	}
	for _, s := range stages {
		r.Stages[s.Name()] = s
	}
	for _, n := range router.Nodes() {
		if _, ok := r.Stages[n]; !ok {
			return nil, fmt.Errorf("roster: no stage for node %s", n)
		}
	}
	return r, nil
}
