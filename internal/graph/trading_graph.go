package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/internal/processing"
	"github.com/dyike/cortextrader/internal/toolloop"
	"github.com/dyike/cortextrader/internal/tools"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

// TradingGraph is the assembled pipeline for one configuration. Propagate may
// be called concurrently; every call gets its own state.
type TradingGraph struct {
	cfg        *config.Config
	roster     *Roster
	controller *Controller
	processor  *processing.SignalProcessor
	reflector  *Reflector
	obs        observer.Observer
	log        *zap.SugaredLogger
}

type options struct {
	models    agents.ModelSource
	toolkit   agents.ToolProvider
	memories  *memory.Registry
	obs       observer.Observer
	callbacks []callbacks.Handler
}

type Option func(*options)

// WithModels replaces the configured LLM provider.
func WithModels(m agents.ModelSource) Option {
	return func(o *options) { o.models = m }
}

// WithToolkit replaces the market data tools.
func WithToolkit(tk agents.ToolProvider) Option {
	return func(o *options) { o.toolkit = tk }
}

func WithMemory(r *memory.Registry) Option {
	return func(o *options) { o.memories = r }
}

func WithObserver(obs observer.Observer) Option {
	return func(o *options) { o.obs = obs }
}

// WithGraphCallbacks adds eino callback handlers next to the logging one.
func WithGraphCallbacks(h ...callbacks.Handler) Option {
	return func(o *options) { o.callbacks = append(o.callbacks, h...) }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*TradingGraph, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	normalized := *cfg
	normalized.Analysts = config.NormalizeAnalysts(cfg.Analysts)
	cfg = &normalized
	log := logger.With("component", "trading_graph")

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.models == nil {
		m, err := llm.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.models = m
	}
	if o.toolkit == nil {
		o.toolkit = tools.NewToolkit(tools.NewSources(cfg, log))
	}
	if o.memories == nil {
		mems, err := OpenMemories(cfg)
		if err != nil {
			return nil, err
		}
		o.memories = mems
	}
	obs := observer.OrNop(o.obs)

	profile := cfg.Profile()
	roster, err := NewRoster(cfg.Analysts, profile, o.toolkit, o.memories)
	if err != nil {
		return nil, err
	}
	loop := toolloop.New(
		toolloop.WithMaxIterations(profile.ToolIterations),
		toolloop.WithRetryBackoff(cfg.LLMRetryBackoff),
	)
	runner := agents.NewRunner(o.models, loop,
		agents.WithObserver(obs),
		agents.WithStageTimeout(cfg.StageTimeout),
	)
	handlers := append([]callbacks.Handler{NewLoggerCallback(log)}, o.callbacks...)
	controller, err := NewController(ctx, roster, runner, cfg.MaxRecurLimit,
		WithJudgeTimeout(cfg.JudgeTimeout),
		WithCallbacks(handlers...),
	)
	if err != nil {
		return nil, err
	}

	quick := o.models.For(llm.Quick)
	return &TradingGraph{
		cfg:        cfg,
		roster:     roster,
		controller: controller,
		processor:  processing.NewSignalProcessor(quick),
		reflector:  NewReflector(quick, o.memories),
		obs:        obs,
		log:        log,
	}, nil
}

// OpenMemories returns the memory registry cfg asks for: persistent chromem
// collections when memory is enabled, otherwise a registry that remembers
// nothing.
func OpenMemories(cfg *config.Config) (*memory.Registry, error) {
	if !cfg.MemoryEnabled {
		return memory.Disabled(), nil
	}
	key := cfg.OpenAIAPIKey
	if key == "" {
		key = cfg.APIKey()
	}
	return memory.NewPersistentRegistry(cfg.MemoryDir, memory.OpenAIEmbedder(cfg.EmbeddingBaseURL, key, cfg.EmbeddingModel))
}

func (g *TradingGraph) Config() *config.Config { return g.cfg }

// Analysts returns the analyst stages this graph runs, in order.
func (g *TradingGraph) Analysts() []string { return g.roster.Router.Analysts() }

// Propagate runs the full pipeline for ticker on tradeDate (YYYY-MM-DD) and
// extracts the final decision. On failure the returned state holds whatever
// the run produced and the decision is a neutral HOLD.
func (g *TradingGraph) Propagate(ctx context.Context, ticker, tradeDate string) (*models.AnalysisState, models.Decision, error) {
	const op = "graph.propagate"
	info, err := market.ClassifyWithOverride(ticker, g.cfg.MarketOverride)
	if err != nil {
		return nil, models.NeutralDecision(""), errors.Wrap(errors.KindConfig, op, err)
	}
	state, err := models.NewAnalysisState(uuid.NewString(), ticker, tradeDate, info)
	if err != nil {
		return nil, models.NeutralDecision(""), errors.Wrap(errors.KindConfig, op, err)
	}

	log := g.log.With("run_id", state.RunID(), "ticker", state.Ticker(), "trade_date", tradeDate, "market", info.Kind)
	log.Infow("run started", "analysts", g.Analysts(), "depth", g.cfg.ResearchDepth)
	g.notify(ctx, state, observer.Event{Type: observer.RunStarted, Detail: state.TradeDate()})
	start := time.Now()

	if err := g.controller.Run(ctx, state); err != nil {
		status := "error"
		if errors.IsKind(err, errors.KindCanceled) {
			status = "canceled"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
		log.Errorw("run failed", "elapsed", time.Since(start), "error", err)
		g.notify(ctx, state, observer.Event{Type: observer.RunFinished, Err: err})
		return state, models.NeutralDecision(fmt.Sprintf("pipeline failed: %v", err)), err
	}

	// the judges may have finished after the caller gave up; extraction
	// still runs so the partial result carries a decision
	decision := g.processor.Process(context.WithoutCancel(ctx), state.SectionText(models.SectionFinalDecision), info)
	metrics.RunsTotal.WithLabelValues("completed").Inc()
	log.Infow("run finished", "elapsed", time.Since(start), "action", decision.Action, "source", decision.Source)
	g.notify(ctx, state, observer.Event{Type: observer.RunFinished, Detail: string(decision.Action)})
	return state, decision, nil
}

// Reflect stores lessons from a finished run given its realized return.
func (g *TradingGraph) Reflect(ctx context.Context, state *models.AnalysisState, returns float64) (int, error) {
	return g.reflector.Reflect(ctx, state, returns)
}

func (g *TradingGraph) notify(ctx context.Context, state *models.AnalysisState, ev observer.Event) {
	ev.RunID = state.RunID()
	ev.Ticker = state.Ticker()
	ev.At = time.Now()
	g.obs.Notify(ctx, ev)
}
