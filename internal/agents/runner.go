package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/internal/toolloop"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

// Debater is implemented by stages that speak several times in a debate.
// They stay in progress until their judge completes.
type Debater interface {
	Debate() string
}

// Judge is implemented by stages that close a debate. Participants still in
// progress are completed together with the judge.
type Judge interface {
	Participants() []string
}

// ModelSource picks the chat model for a tier.
type ModelSource interface {
	For(t llm.Tier) model.BaseChatModel
}

// Runner executes single stages. It is safe for concurrent use across runs
// as long as each run has its own state.
type Runner struct {
	models       ModelSource
	loop         *toolloop.Loop
	obs          observer.Observer
	stageTimeout time.Duration
	log          *zap.SugaredLogger
}

type RunnerOption func(*Runner)

func WithObserver(o observer.Observer) RunnerOption {
	return func(r *Runner) { r.obs = observer.OrNop(o) }
}

// WithStageTimeout bounds each stage visit. Zero disables the bound.
func WithStageTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.stageTimeout = d }
}

func NewRunner(models ModelSource, loop *toolloop.Loop, opts ...RunnerOption) *Runner {
	r := &Runner{
		models: models,
		loop:   loop,
		obs:    observer.Nop,
		log:    logger.With("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one visit of stage against state.
//
// A model failure on a non-critical stage is absorbed: the stage commits a
// placeholder and is marked as errored, and Run returns nil so the pipeline
// continues. Critical stages and cancellation of ctx return the error.
func (r *Runner) Run(ctx context.Context, stage Stage, state *models.AnalysisState) error {
	name := stage.Name()
	log := r.log.With("stage", name, "run_id", state.RunID(), "ticker", state.Ticker())

	if state.Status(name) == models.StatusPending {
		_ = state.SetStatus(name, models.StatusInProgress)
	}
	r.notify(ctx, state, observer.Event{Type: observer.StageStarted, Stage: name, Status: state.Status(name)})

	start := time.Now()
	content, err := r.execute(ctx, stage, state)
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil && errors.IsCanceled(err) {
			// the stage's own deadline expired, not the run
			err = errors.Wrap(errors.KindLLM, "runner."+name, fmt.Errorf("stage timed out after %s: %w", r.stageTimeout, err))
		}
		if !errors.IsKind(err, errors.KindLLM) || IsCritical(stage) {
			return r.fail(ctx, state, name, err, log)
		}

		log.Warnw("stage failed, continuing with placeholder", "error", err)
		placeholder := fmt.Sprintf("analysis incomplete: %s could not produce a report (%v)", consts.DisplayName(name), err)
		msg := schema.AssistantMessage(placeholder, nil)
		msg.Name = name
		state.AppendMessages(msg)
		if cerr := stage.Commit(state, placeholder); cerr != nil {
			return r.fail(ctx, state, name, cerr, log)
		}
		_ = state.SetStatus(name, models.StatusError)
		metrics.StageOutcomes.WithLabelValues(name, "degraded").Inc()
		r.notify(ctx, state, observer.Event{Type: observer.StageFinished, Stage: name, Status: models.StatusError, Err: err, Detail: placeholder})
		return nil
	}

	if err := stage.Commit(state, content); err != nil {
		return r.fail(ctx, state, name, err, log)
	}
	if _, ok := stage.(Debater); !ok {
		_ = state.SetStatus(name, models.StatusCompleted)
	}
	if j, ok := stage.(Judge); ok {
		for _, p := range j.Participants() {
			if state.Status(p) == models.StatusInProgress {
				_ = state.SetStatus(p, models.StatusCompleted)
			}
		}
	}

	metrics.StageOutcomes.WithLabelValues(name, "ok").Inc()
	log.Infow("stage finished", "elapsed", time.Since(start), "chars", len(content))
	r.notify(ctx, state, observer.Event{Type: observer.StageFinished, Stage: name, Status: state.Status(name)})
	return nil
}

func (r *Runner) execute(ctx context.Context, stage Stage, state *models.AnalysisState) (string, error) {
	if r.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.stageTimeout)
		defer cancel()
	}

	msgs, err := stage.Messages(ctx, state)
	if err != nil {
		return "", errors.Wrap(errors.KindUnknown, "runner."+stage.Name(), err)
	}

	res, err := r.loop.Run(ctx, toolloop.Request{
		RunID:    state.RunID(),
		Stage:    stage.Name(),
		Model:    r.models.For(stage.Tier()),
		Tools:    stage.Tools(state),
		Messages: msgs,
		Observer: r.obs,
	})
	if res != nil {
		state.AppendMessages(res.Messages...)
	}
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

func (r *Runner) fail(ctx context.Context, state *models.AnalysisState, name string, err error, log *zap.SugaredLogger) error {
	_ = state.SetStatus(name, models.StatusError)
	metrics.StageOutcomes.WithLabelValues(name, "error").Inc()
	log.Errorw("stage failed", "error", err)
	r.notify(ctx, state, observer.Event{Type: observer.StageFinished, Stage: name, Status: models.StatusError, Err: err})
	return err
}

func (r *Runner) notify(ctx context.Context, state *models.AnalysisState, ev observer.Event) {
	ev.RunID = state.RunID()
	ev.Ticker = state.Ticker()
	ev.At = time.Now()
	r.obs.Notify(ctx, ev)
}
