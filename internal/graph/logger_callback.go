package graph

import (
	"context"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"
)

type startKey struct{}

// NewLoggerCallback logs graph node and chat model activity. Chat model ends
// carry token usage when the provider reports it.
func NewLoggerCallback(log *zap.SugaredLogger) callbacks.Handler {
	return callbacks.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *callbacks.RunInfo, _ callbacks.CallbackInput) context.Context {
			if info == nil {
				return ctx
			}
			log.Debugw("node start", "node", info.Name, "component", info.Component)
			return context.WithValue(ctx, startKey{}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
			if info == nil {
				return ctx
			}
			fields := []any{"node", info.Name, "component", info.Component}
			if start, ok := ctx.Value(startKey{}).(time.Time); ok {
				fields = append(fields, "elapsed", time.Since(start))
			}
			if info.Component == components.ComponentOfChatModel {
				if out := ecmodel.ConvCallbackOutput(output); out != nil && out.TokenUsage != nil {
					fields = append(fields,
						"prompt_tokens", out.TokenUsage.PromptTokens,
						"completion_tokens", out.TokenUsage.CompletionTokens)
				}
			}
			log.Debugw("node end", fields...)
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			name := ""
			if info != nil {
				name = info.Name
			}
			log.Warnw("node error", "node", name, "error", err)
			return ctx
		}).
		Build()
}
