package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/graph"
)

// Engine is a trading graph built from one settings snapshot. Engines are
// immutable; a settings change builds a new one.
type Engine struct {
	Config  config.Config
	Graph   *graph.TradingGraph
	BuiltAt time.Time
	Version uint64
}

var engineSeq atomic.Uint64

// GraphBuilder builds engines with graph.New, passing opts to every build.
func GraphBuilder(opts ...graph.Option) EngineBuilder {
	return func(ctx context.Context, cfg config.Config) (*Engine, error) {
		g, err := graph.New(ctx, &cfg, opts...)
		if err != nil {
			return nil, err
		}
		return newEngine(cfg, g), nil
	}
}

func newEngine(cfg config.Config, g *graph.TradingGraph) *Engine {
	return &Engine{
		Config:  cfg,
		Graph:   g,
		BuiltAt: time.Now(),
		Version: engineSeq.Add(1),
	}
}
