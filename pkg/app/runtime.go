// Package app keeps a trading engine in sync with the settings file.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/models"
)

type EngineBuilder func(context.Context, config.Config) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

// WithNotifier receives "engine.reloaded" and "engine.reload_failed" with a
// JSON payload.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// WithoutWatch skips watching the settings file; changes made through the
// manager are still applied.
func WithoutWatch() Option {
	return func(r *Runtime) { r.watch = false }
}

// Runtime holds the current engine. Runs in flight keep the engine they
// started with; a reload only affects runs started afterwards.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	watch   bool
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.SugaredLogger
}

func NewRuntime(ctx context.Context, cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: GraphBuilder(),
		watch:   true,
		log:     logger.With("component", "runtime"),
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.ctx, rt.cancel = context.WithCancel(ctx)

	if err := rt.reload(cfgMgr.Get()); err != nil {
		rt.cancel()
		return nil, err
	}

	onChange := func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil {
			rt.log.Warnw("engine reload failed, keeping previous engine", "error", err)
		}
	}
	if !rt.watch {
		cfgMgr.Subscribe(onChange)
		return rt, nil
	}
	if err := cfgMgr.Watch(rt.ctx, onChange); err != nil {
		rt.cancel()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Config() config.Config {
	return r.cfgMgr.Get()
}

// Analyze runs the current engine's graph for ticker on tradeDate.
func (r *Runtime) Analyze(ctx context.Context, ticker, tradeDate string) (*models.AnalysisState, models.Decision, error) {
	return r.Engine().Graph.Propagate(ctx, ticker, tradeDate)
}

// Close stops watching the settings file.
func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.cfgMgr.UpdateFromJSON(jsonStr)
}

func (r *Runtime) reload(cfg config.Config) error {
	engine, err := r.builder(r.ctx, cfg)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.engine.Store(engine)
	r.log.Infow("engine built", "version", engine.Version, "depth", cfg.ResearchDepth, "analysts", cfg.Analysts)
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
		"depth":    engine.Config.ResearchDepth,
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
