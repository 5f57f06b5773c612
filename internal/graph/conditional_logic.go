package graph

import (
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

// End is the router's terminal destination.
const End = compose.END

// Router picks the stage that runs after current. It only reads the state,
// so calling it twice on the same state gives the same answer.
type Router struct {
	analysts []string
	research *debate.Coordinator
	risk     *debate.Coordinator
}

// NewRouter orders the selected analysts canonically. Unknown selections
// and an empty selection are configuration errors.
func NewRouter(selected []string, research, risk *debate.Coordinator) (*Router, error) {
	nodes, err := analystNodes(selected)
	if err != nil {
		return nil, err
	}
	if research == nil || risk == nil {
		return nil, fmt.Errorf("router needs both debate coordinators")
	}
	return &Router{analysts: nodes, research: research, risk: risk}, nil
}

func analystNodes(selected []string) ([]string, error) {
	var nodes []string
	for _, a := range config.NormalizeAnalysts(selected) {
		n, ok := consts.AnalystNode(a)
		if !ok {
			return nil, errors.Wrapf(errors.KindConfig, "graph.router", "unknown analyst %q", a)
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil, errors.Wrap(errors.KindConfig, "graph.router", errors.ErrNoAnalysts)
	}
	return nodes, nil
}

// First is the stage a run starts with.
func (r *Router) First() string { return r.analysts[0] }

// Analysts returns the selected analyst nodes in execution order.
func (r *Router) Analysts() []string { return append([]string(nil), r.analysts...) }

// Nodes lists every stage a run may visit.
func (r *Router) Nodes() []string {
	nodes := r.Analysts()
	nodes = append(nodes, r.research.Speakers()...)
	nodes = append(nodes, r.research.Judge(), consts.Trader)
	nodes = append(nodes, r.risk.Speakers()...)
	return append(nodes, r.risk.Judge())
}

// Next returns the stage after current, or End.
//
// A trailing assistant message with pending tool calls sends the run back to
// the stage that issued them.
func (r *Router) Next(state *models.AnalysisState, current string) string {
	if last := state.LastMessage(); last != nil && len(last.ToolCalls) > 0 {
		return current
	}

	switch {
	case consts.IsAnalystNode(current):
		for i, n := range r.analysts {
			if n == current && i+1 < len(r.analysts) {
				return r.analysts[i+1]
			}
		}
		return turnNode(r.research.Next(state.InvestDebate), consts.Trader)
	case r.research.IsSpeaker(current) || current == r.research.Judge():
		return turnNode(r.research.Next(state.InvestDebate), consts.Trader)
	case current == consts.Trader:
		return turnNode(r.risk.Next(state.RiskDebate), End)
	case r.risk.IsSpeaker(current) || current == r.risk.Judge():
		return turnNode(r.risk.Next(state.RiskDebate), End)
	}
	return End
}

// turnNode maps a finished debate to after.
func turnNode(t debate.Turn, after string) string {
	if t.Phase == debate.PhaseDone {
		return after
	}
	return t.Node
}
