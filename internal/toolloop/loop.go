// Package toolloop runs one agent stage's conversation with its model,
// executing requested tools until the model answers in plain text or the
// iteration cap is reached.
package toolloop

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/metrics"
	"github.com/dyike/cortextrader/internal/observer"
	"github.com/dyike/cortextrader/pkg/errors"
)

const (
	DefaultMaxIterations   = 4
	maxToolResultInSummary = 600
)

// Loop is safe for concurrent use; all per-stage state lives in Run.
type Loop struct {
	maxIterations int
	retryBackoff  time.Duration
	log           *zap.SugaredLogger
}

type Option func(*Loop)

// WithMaxIterations sets how many tool-call rounds a stage may make.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithRetryBackoff sets the pause before the single LLM retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(l *Loop) {
		if d >= 0 {
			l.retryBackoff = d
		}
	}
}

func New(opts ...Option) *Loop {
	l := &Loop{
		maxIterations: DefaultMaxIterations,
		retryBackoff:  2 * time.Second,
		log:           logger.With("component", "toolloop"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) MaxIterations() int { return l.maxIterations }

type Request struct {
	RunID    string
	Stage    string
	Model    model.BaseChatModel
	Tools    []tool.InvokableTool
	Messages []*schema.Message
	Observer observer.Observer
}

type Result struct {
	// Content is the stage's final text. Never empty when Run returns nil.
	Content string
	// Messages holds what the loop produced: assistant turns, tool results and
	// the final answer, in order.
	Messages []*schema.Message
	// ToolCalls counts executed tool calls.
	ToolCalls int
	// Iterations counts model turns that requested tools.
	Iterations int
	// Capped is set when the iteration cap forced the answer.
	Capped bool
}

// Run drives the conversation. The returned error is always KindLLM or
// KindCanceled; tool failures are fed back to the model instead.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	obs := observer.OrNop(req.Observer)
	log := l.log.With("stage", req.Stage, "run_id", req.RunID)

	chat := req.Model
	byName := make(map[string]tool.InvokableTool, len(req.Tools))
	if len(req.Tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(req.Tools))
		for _, t := range req.Tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, errors.Wrap(errors.KindTool, "toolloop.bind", err)
			}
			infos = append(infos, info)
			byName[info.Name] = t
		}
		tc, ok := req.Model.(model.ToolCallingChatModel)
		if !ok {
			return nil, errors.Wrapf(errors.KindLLM, "toolloop.bind", "model for %s cannot call tools", req.Stage)
		}
		bound, err := tc.WithTools(infos)
		if err != nil {
			return nil, errors.Wrap(errors.KindLLM, "toolloop.bind", err)
		}
		chat = bound
	}

	transcript := append([]*schema.Message(nil), req.Messages...)
	res := &Result{}
	emit := func(m *schema.Message) {
		m.Name = req.Stage
		transcript = append(transcript, m)
		res.Messages = append(res.Messages, m)
		obs.Notify(ctx, observer.Event{Type: observer.Message, RunID: req.RunID, Stage: req.Stage, Message: m, At: time.Now()})
	}

	for {
		resp, err := l.generate(ctx, chat, transcript, req.Stage, log)
		if err != nil {
			return res, err
		}

		if len(resp.ToolCalls) == 0 {
			content := strings.TrimSpace(resp.Content)
			if content == "" {
				content = bestEffort(req.Stage, "model returned an empty answer", res)
				resp = schema.AssistantMessage(content, nil)
			}
			emit(resp)
			res.Content = content
			return res, nil
		}

		if res.Iterations >= l.maxIterations {
			// the pending tool calls are dropped so the transcript never ends
			// on an unanswered request
			res.Capped = true
			content := bestEffort(req.Stage, fmt.Sprintf("tool-call limit of %d iterations reached", l.maxIterations), res)
			emit(schema.AssistantMessage(content, nil))
			res.Content = content
			metrics.IterationCapHits.WithLabelValues(req.Stage).Inc()
			log.Warnw("iteration cap reached", "iterations", res.Iterations, "tool_calls", res.ToolCalls,
				"error", errors.Wrapf(errors.KindIterationCap, "toolloop.run", "%d iterations", res.Iterations))
			return res, nil
		}

		res.Iterations++
		emit(resp)
		for _, call := range resp.ToolCalls {
			out := l.invoke(ctx, byName, call, req.Stage, log)
			res.ToolCalls++
			emit(schema.ToolMessage(out, call.ID))
		}
	}
}

// generate calls the model, retrying once after the backoff.
func (l *Loop) generate(ctx context.Context, chat model.BaseChatModel, msgs []*schema.Message, stage string, log *zap.SugaredLogger) (*schema.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			metrics.LLMRetries.WithLabelValues(stage).Inc()
			log.Warnw("retrying chat completion", "attempt", attempt+1, "backoff", l.retryBackoff, "error", lastErr)
			if err := sleep(ctx, l.retryBackoff); err != nil {
				return nil, errors.Wrap(errors.KindCanceled, "toolloop.generate", err)
			}
		}
		resp, err := chat.Generate(ctx, msgs)
		if err == nil && resp == nil {
			err = errors.ErrEmptyResponse
		}
		if err == nil {
			return resp, nil
		}
		if errors.IsCanceled(err) || ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindCanceled, "toolloop.generate", err)
		}
		lastErr = err
	}
	return nil, errors.Wrap(errors.KindLLM, "toolloop.generate", lastErr)
}

// invoke runs one tool call. Failures become the tool's result text so the
// model can react to them.
func (l *Loop) invoke(ctx context.Context, tools map[string]tool.InvokableTool, call schema.ToolCall, stage string, log *zap.SugaredLogger) string {
	name := call.Function.Name
	t, ok := tools[name]
	if !ok {
		err := errors.Wrapf(errors.KindTool, "toolloop.invoke", "%s: %w", name, errors.ErrUnknownTool)
		metrics.ToolCalls.WithLabelValues(stage, name, "unknown").Inc()
		log.Warnw("model requested unknown tool", "tool", name, "error", err)
		return fmt.Sprintf("Error: tool %q is not available. Available tools: %s", name, toolNames(tools))
	}

	start := time.Now()
	out, err := t.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		err = errors.Wrap(errors.KindTool, "toolloop.invoke", err)
		metrics.ToolCalls.WithLabelValues(stage, name, "error").Inc()
		log.Warnw("tool failed", "tool", name, "args", call.Function.Arguments, "error", err)
		return fmt.Sprintf("Error: tool %s failed: %v. Try a different tool or continue without this data.", name, err)
	}
	metrics.ToolCalls.WithLabelValues(stage, name, "ok").Inc()
	log.Debugw("tool call", "tool", name, "elapsed", time.Since(start), "bytes", len(out))
	if strings.TrimSpace(out) == "" {
		return fmt.Sprintf("Tool %s returned no data.", name)
	}
	return out
}

// bestEffort builds a stage answer from whatever the conversation produced.
func bestEffort(stage, reason string, res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Best-effort report (%s).\n", stage, reason)
	var notes, data []string
	for _, m := range res.Messages {
		switch m.Role {
		case schema.Assistant:
			if c := strings.TrimSpace(m.Content); c != "" {
				notes = append(notes, c)
			}
		case schema.Tool:
			if c := strings.TrimSpace(m.Content); c != "" {
				data = append(data, truncate(c, maxToolResultInSummary))
			}
		}
	}
	if len(notes) > 0 {
		b.WriteString("\nInterim notes:\n")
		for _, n := range notes {
			b.WriteString("- " + n + "\n")
		}
	}
	if len(data) > 0 {
		b.WriteString("\nData gathered:\n")
		for _, d := range data {
			b.WriteString(d + "\n\n")
		}
	}
	if len(notes) == 0 && len(data) == 0 {
		b.WriteString("\nNo partial results were available.")
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func toolNames(tools map[string]tool.InvokableTool) string {
	names := make([]string, 0, len(tools))
	for n := range tools {
		names = append(names, n)
	}
	if len(names) == 0 {
		return "none"
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
