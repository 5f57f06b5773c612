package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/observer"
)

// Progress prints stage transitions and tool calls as they happen. Safe for
// concurrent runs; lines of different runs are prefixed with the ticker.
type Progress struct {
	mu         sync.Mutex
	w          io.Writer
	withTicker bool
}

var _ observer.Observer = (*Progress)(nil)

func NewProgress(w io.Writer, withTicker bool) *Progress {
	return &Progress{w: w, withTicker: withTicker}
}

func (p *Progress) Notify(_ context.Context, ev observer.Event) {
	line := p.format(ev)
	if line == "" {
		return
	}
	if p.withTicker && ev.Ticker != "" {
		line = fmt.Sprintf("[%s] %s", ev.Ticker, line)
	}
	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}

func (p *Progress) format(ev observer.Event) string {
	name := consts.DisplayName(ev.Stage)
	switch ev.Type {
	case observer.RunStarted:
		return titleStyle.Render(fmt.Sprintf("Analyzing %s on %s", ev.Ticker, ev.Detail))
	case observer.StageStarted:
		return inProgressStyle.Render("> " + name)
	case observer.StageFinished:
		return formatStatus(name, ev.Status)
	case observer.Message:
		if ev.Message == nil || len(ev.Message.ToolCalls) == 0 {
			return ""
		}
		calls := make([]string, 0, len(ev.Message.ToolCalls))
		for _, tc := range ev.Message.ToolCalls {
			calls = append(calls, tc.Function.Name)
		}
		return toolCallStyle.Render(fmt.Sprintf("  %s calls %s", name, strings.Join(calls, ", ")))
	case observer.RunFinished:
		if ev.Err != nil {
			return errorStyle.Render("Run failed: " + ev.Err.Error())
		}
		return completedStyle.Render("Run finished: " + ev.Detail)
	}
	return ""
}
