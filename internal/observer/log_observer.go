package observer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dyike/cortextrader/consts"
)

type logObserver struct {
	log *zap.SugaredLogger
}

// NewLogObserver writes every event to l.
func NewLogObserver(l *zap.SugaredLogger) Observer {
	return &logObserver{log: l}
}

func (o *logObserver) Notify(_ context.Context, ev Event) {
	l := o.log.With("run_id", ev.RunID)
	switch ev.Type {
	case RunStarted:
		l.Infow("analysis started", "ticker", ev.Ticker, "detail", ev.Detail)
	case RunFinished:
		if ev.Err != nil {
			l.Errorw("analysis failed", "ticker", ev.Ticker, "error", ev.Err)
			return
		}
		l.Infow("analysis finished", "ticker", ev.Ticker, "detail", ev.Detail)
	case StageStarted:
		l.Infow("stage started", "stage", ev.Stage, "agent", consts.DisplayName(ev.Stage))
	case StageFinished:
		if ev.Err != nil {
			l.Warnw("stage finished with error", "stage", ev.Stage, "status", ev.Status, "error", ev.Err)
			return
		}
		l.Infow("stage finished", "stage", ev.Stage, "status", ev.Status)
	case Message:
		if ev.Message == nil {
			return
		}
		fields := []any{"stage", ev.Stage, "role", ev.Message.Role, "content", snippet(ev.Message.Content, 120)}
		if n := len(ev.Message.ToolCalls); n > 0 {
			names := make([]string, 0, n)
			for _, tc := range ev.Message.ToolCalls {
				names = append(names, tc.Function.Name)
			}
			fields = append(fields, "tool_calls", names)
		}
		l.Debugw("message", fields...)
	}
}

func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
