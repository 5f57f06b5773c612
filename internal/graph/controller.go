package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/debate"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

const graphName = "CortexTrader"

// Controller runs one roster as an eino graph. Every node is a single stage
// visit and every edge out of a node is decided by the Router.
type Controller struct {
	roster       *Roster
	runner       *agents.Runner
	judgeTimeout time.Duration
	callbacks    []callbacks.Handler
	runnable     compose.Runnable[*models.AnalysisState, *models.AnalysisState]
	log          *zap.SugaredLogger
}

type ControllerOption func(*Controller)

// WithJudgeTimeout bounds judge and trader visits, which run detached from
// the caller's cancellation.
func WithJudgeTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.judgeTimeout = d }
}

// WithCallbacks attaches eino callback handlers to every invocation.
func WithCallbacks(h ...callbacks.Handler) ControllerOption {
	return func(c *Controller) { c.callbacks = append(c.callbacks, h...) }
}

// runScope carries the caller's context and the first stage error into the
// graph, which itself runs on a context that is never cancelled.
type runScope struct {
	parent context.Context
	err    error
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *runScope {
	if s, ok := ctx.Value(scopeKey{}).(*runScope); ok {
		return s
	}
	return &runScope{parent: ctx}
}

func NewController(ctx context.Context, roster *Roster, runner *agents.Runner, maxSteps int, opts ...ControllerOption) (*Controller, error) {
	c := &Controller{
		roster: roster,
		runner: runner,
		log:    logger.With("component", "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}

	nodes := roster.Router.Nodes()
	g := compose.NewGraph[*models.AnalysisState, *models.AnalysisState]()

	outMap := map[string]bool{compose.END: true}
	for _, n := range nodes {
		outMap[n] = true
	}

	for _, n := range nodes {
		stage := roster.Stages[n]
		if err := g.AddLambdaNode(n, compose.InvokableLambda(c.visitor(stage)), compose.WithNodeName(n)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n, err)
		}
	}
	for _, n := range nodes {
		if err := g.AddBranch(n, compose.NewGraphBranch(c.handOff(n), outMap)); err != nil {
			return nil, fmt.Errorf("add branch %s: %w", n, err)
		}
	}
	if err := g.AddEdge(compose.START, roster.Router.First()); err != nil {
		return nil, err
	}

	if floor := MinRunSteps(roster); maxSteps < floor {
		maxSteps = floor
	}
	r, err := g.Compile(ctx,
		compose.WithGraphName(graphName),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}
	c.runnable = r
	return c, nil
}

// MinRunSteps is the number of node visits a full run of roster needs,
// with headroom for the start and end transitions.
func MinRunSteps(r *Roster) int {
	research := r.Research.MaxRounds()*len(r.Research.Speakers()) + 1
	risk := r.Risk.MaxRounds()*len(r.Risk.Speakers()) + 1
	return len(r.Router.Analysts()) + research + 1 + risk + 2
}

// Run drives state from the first analyst to the portfolio manager.
func (c *Controller) Run(ctx context.Context, state *models.AnalysisState) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.KindCanceled, "controller.run", err)
	}
	scope := &runScope{parent: ctx}
	gctx := context.WithValue(context.WithoutCancel(ctx), scopeKey{}, scope)

	var opts []compose.Option
	if len(c.callbacks) > 0 {
		opts = append(opts, compose.WithCallbacks(c.callbacks...))
	}
	_, err := c.runnable.Invoke(gctx, state, opts...)
	if scope.err != nil {
		return scope.err
	}
	if err != nil {
		return fmt.Errorf("graph %s: %w", graphName, err)
	}
	return nil
}

func (c *Controller) handOff(current string) func(context.Context, *models.AnalysisState) (string, error) {
	return func(_ context.Context, state *models.AnalysisState) (string, error) {
		next := c.roster.Router.Next(state, current)
		c.log.Debugw("hand off", "run_id", state.RunID(), "from", current, "to", next)
		return next, nil
	}
}

func (c *Controller) visitor(stage agents.Stage) func(context.Context, *models.AnalysisState) (*models.AnalysisState, error) {
	return func(ctx context.Context, state *models.AnalysisState) (*models.AnalysisState, error) {
		scope := scopeFrom(ctx)
		if err := c.visit(scope.parent, stage, state); err != nil {
			if scope.err == nil {
				scope.err = err
			}
			return state, err
		}
		return state, nil
	}
}

// visit runs one stage. An analyst aborts the run once parent is cancelled; a
// debater halts its debate instead. Judges and the trader always finish on a
// detached context.
func (c *Controller) visit(parent context.Context, stage agents.Stage, state *models.AnalysisState) error {
	name := stage.Name()
	switch {
	case consts.IsAnalystNode(name):
		if err := parent.Err(); err != nil {
			return errors.Wrap(errors.KindCanceled, "controller."+name, err)
		}
		return c.runner.Run(parent, stage, state)

	case c.debateOf(name) != nil:
		coord, transcript := c.debateOf(name), c.transcriptOf(name, state)
		if parent.Err() == nil {
			err := c.runner.Run(parent, stage, state)
			if err == nil || parent.Err() == nil || !errors.IsCanceled(err) {
				return err
			}
		}
		c.log.Warnw("run cancelled during debate, handing over to judge",
			"run_id", state.RunID(), "debate", coord.Name(), "stage", name, "round", transcript.Rounds())
		coord.Halt(transcript)
		return nil

	default:
		if parent.Err() != nil {
			c.haltOpenDebates(state)
		}
		ctx := context.WithoutCancel(parent)
		if c.judgeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.judgeTimeout)
			defer cancel()
		}
		err := c.runner.Run(ctx, stage, state)
		if err == nil {
			c.observeRounds(name, state)
		}
		return err
	}
}

func (c *Controller) debateOf(speaker string) *debate.Coordinator {
	switch {
	case c.roster.Research.IsSpeaker(speaker):
		return c.roster.Research
	case c.roster.Risk.IsSpeaker(speaker):
		return c.roster.Risk
	}
	return nil
}

func (c *Controller) transcriptOf(speaker string, state *models.AnalysisState) debate.Transcript {
	if c.roster.Research.IsSpeaker(speaker) {
		return state.InvestDebate
	}
	return state.RiskDebate
}

// haltOpenDebates stops every debate that has not been judged yet so the
// remaining judges run straight away.
func (c *Controller) haltOpenDebates(state *models.AnalysisState) {
	if !state.InvestDebate.Concluded() {
		c.roster.Research.Halt(state.InvestDebate)
	}
	if !state.RiskDebate.Concluded() {
		c.roster.Risk.Halt(state.RiskDebate)
	}
}

func (c *Controller) observeRounds(name string, state *models.AnalysisState) {
	switch name {
	case c.roster.Research.Judge():
		metrics.DebateRounds.WithLabelValues(researchDebate).Observe(float64(state.InvestDebate.Rounds()))
	case c.roster.Risk.Judge():
		metrics.DebateRounds.WithLabelValues(riskDebate).Observe(float64(state.RiskDebate.Rounds()))
	}
}
