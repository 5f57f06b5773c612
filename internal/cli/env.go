package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/debug"
	"github.com/dyike/cortextrader/internal/display"
	"github.com/dyike/cortextrader/internal/graph"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/internal/storage"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/utils"
)

// openManager loads the settings file named by --config, or the default one.
func openManager(path string) (*config.Manager, error) {
	if path != "" {
		return config.NewManager(config.WithConfigPath(path))
	}
	return config.NewManager()
}

// withEnv overlays .env and the process environment on the settings file.
func withEnv(cfg config.Config) (*config.Config, error) {
	_ = godotenv.Load()
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// runEnv owns everything a command needs around the trading graph: logging,
// metrics, persistence and progress output.
type runEnv struct {
	cfg      *config.Config
	out      io.Writer
	log      *zap.SugaredLogger
	store    *storage.Store
	recorder *storage.Recorder
	obs      observer.Observer
	metrics  *http.Server
}

func openRunEnv(ctx context.Context, cfg *config.Config, o *options, tickerPrefix bool) (*runEnv, error) {
	if !o.noLogInit {
		if err := logger.Init(cfg.LogLevel, cfg.Debug); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	env := &runEnv{cfg: cfg, out: o.out, log: logger.With("component", "cli")}

	if url, err := debug.Init(ctx, cfg); err != nil {
		env.log.Warnw("eino debug unavailable", "error", err)
	} else if url != "" {
		display.Info(env.out, "Eino debug UI: "+url)
	}
	if cfg.MetricsAddr != "" {
		env.metrics = serveMetrics(cfg.MetricsAddr, env.log)
	}

	obs := observer.Multi{
		observer.NewLogObserver(logger.With("component", "pipeline")),
		display.NewProgress(env.out, tickerPrefix),
	}
	store, err := storage.OpenFromConfig(ctx, cfg)
	if err != nil {
		env.log.Warnw("run persistence disabled", "error", err)
	} else {
		env.store = store
		env.recorder = storage.NewRecorder(store)
		obs = append(obs, env.recorder)
	}
	env.obs = obs
	return env, nil
}

func serveMetrics(addr string, log *zap.SugaredLogger) *http.Server {
	metrics.MustRegisterDefault()
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnw("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	log.Infow("serving metrics", "addr", addr)
	return srv
}

func (e *runEnv) graphOptions(extra []graph.Option) []graph.Option {
	opts := []graph.Option{graph.WithObserver(e.obs)}
	return append(opts, extra...)
}

// finish persists the decision and writes the report files of a run.
func (e *runEnv) finish(state *models.AnalysisState, d models.Decision) string {
	if state == nil {
		return ""
	}
	if e.recorder != nil {
		e.recorder.RecordDecision(state.RunID(), d, state.SectionText(models.SectionFinalDecision))
	}
	dir, err := utils.WriteReports(e.cfg.ResultsDir, state, d)
	if err != nil {
		e.log.Warnw("write reports failed", "ticker", state.Ticker(), "error", err)
		return ""
	}
	return dir
}

func (e *runEnv) Close() {
	if e.recorder != nil {
		_ = e.recorder.Close()
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.metrics.Shutdown(ctx)
	}
}
