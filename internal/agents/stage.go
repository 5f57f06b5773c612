// Package agents defines the contract every pipeline stage implements and
// the runner that executes one stage against the shared analysis state.
package agents

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/models"
)

// Stage is one agent of the pipeline. A stage turns the current state into a
// prompt, and commits the model's final text back into the state.
type Stage interface {
	// Name is the graph node name, one of the consts node names.
	Name() string
	Tier() llm.Tier
	// Tools returns the tools bound for this run. Most stages have none.
	Tools(state *models.AnalysisState) []tool.InvokableTool
	Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error)
	// Commit writes the stage's output into state. It is called exactly
	// once per stage visit, with either the model's answer or a placeholder.
	Commit(state *models.AnalysisState, content string) error
}

// Critical is implemented by stages whose failure must fail the run.
type Critical interface {
	Critical() bool
}

// ToolProvider binds data tools to an analyst for one run.
type ToolProvider interface {
	For(analyst string, info market.Info, tradeDate time.Time) []tool.InvokableTool
}

// IsCritical reports whether s fails the run when its model call fails.
func IsCritical(s Stage) bool {
	c, ok := s.(Critical)
	return ok && c.Critical()
}

// TradeTime parses the state's trade date. NewAnalysisState has already
// validated it.
func TradeTime(state *models.AnalysisState) time.Time {
	t, _ := time.Parse("2006-01-02", state.TradeDate())
	return t
}
