// Package analysts holds the four report-writing stages that open the
// pipeline. Each gets data tools for its beat and writes one report section.
package analysts

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/agents"
	"github.com/dyike/cortextrader/internal/llm"
	"github.com/dyike/cortextrader/models"
)

const userTemplate = "Prepare your report on {ticker} for the trading day {trade_date}."

// Analyst is a tool-using report writer.
type Analyst struct {
	node    string
	analyst string
	section models.Section
	prompt  string
	toolkit agents.ToolProvider
}

func newAnalyst(analyst string, section models.Section, prompt string, tk agents.ToolProvider) *Analyst {
	node, _ := consts.AnalystNode(analyst)
	return &Analyst{node: node, analyst: analyst, section: section, prompt: prompt, toolkit: tk}
}

// NewMarketAnalyst reads price action and technical indicators.
func NewMarketAnalyst(tk agents.ToolProvider) *Analyst {
	return newAnalyst(consts.AnalystMarket, models.SectionMarket, "analysts/market", tk)
}

// NewSocialAnalyst gauges public and retail sentiment.
func NewSocialAnalyst(tk agents.ToolProvider) *Analyst {
	return newAnalyst(consts.AnalystSocial, models.SectionSentiment, "analysts/social", tk)
}

// NewNewsAnalyst covers company news and macro developments.
func NewNewsAnalyst(tk agents.ToolProvider) *Analyst {
	return newAnalyst(consts.AnalystNews, models.SectionNews, "analysts/news", tk)
}

// NewFundamentalsAnalyst reviews company reference data and insider activity.
func NewFundamentalsAnalyst(tk agents.ToolProvider) *Analyst {
	return newAnalyst(consts.AnalystFundamentals, models.SectionFundamentals, "analysts/fundamentals", tk)
}

// New returns the analyst for a selection name.
func New(analyst string, tk agents.ToolProvider) (*Analyst, bool) {
	switch analyst {
	case consts.AnalystMarket:
		return NewMarketAnalyst(tk), true
	case consts.AnalystSocial:
		return NewSocialAnalyst(tk), true
	case consts.AnalystNews:
		return NewNewsAnalyst(tk), true
	case consts.AnalystFundamentals:
		return NewFundamentalsAnalyst(tk), true
	}
	return nil, false
}

func (a *Analyst) Name() string            { return a.node }
func (a *Analyst) Tier() llm.Tier          { return llm.Quick }
func (a *Analyst) Section() models.Section { return a.section }

func (a *Analyst) Tools(state *models.AnalysisState) []tool.InvokableTool {
	if a.toolkit == nil {
		return nil
	}
	return a.toolkit.For(a.analyst, state.Market(), agents.TradeTime(state))
}

func (a *Analyst) Messages(ctx context.Context, state *models.AnalysisState) ([]*schema.Message, error) {
	var names []string
	for _, t := range a.Tools(state) {
		if info, err := t.Info(ctx); err == nil {
			names = append(names, info.Name)
		}
	}
	toolNames := "none, answer from general knowledge and state that live data was unavailable"
	if len(names) > 0 {
		toolNames = strings.Join(names, ", ")
	}
	return agents.Render(ctx, state, a.prompt, userTemplate, map[string]any{"tool_names": toolNames})
}

func (a *Analyst) Commit(state *models.AnalysisState, content string) error {
	state.SetSection(a.section, content)
	return nil
}
