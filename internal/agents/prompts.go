package agents

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/internal/logger"
	"github.com/dyike/cortextrader/internal/memory"
	"github.com/dyike/cortextrader/models"
)

//go:embed prompts
var promptFiles embed.FS

// LoadPrompt returns the embedded system prompt at prompts/<path>.md.
func LoadPrompt(path string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", path))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", path, err)
	}
	return string(content), nil
}

// Render formats the system prompt at path and the user template with vars.
// Both are FString templates; BaseVars are merged under vars.
func Render(ctx context.Context, state *models.AnalysisState, path, user string, vars map[string]any) ([]*schema.Message, error) {
	sys, err := LoadPrompt(path)
	if err != nil {
		return nil, err
	}
	all := BaseVars(state)
	for k, v := range vars {
		all[k] = v
	}
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(sys),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", path, err)
	}
	return msgs, nil
}

// BaseVars are the variables every stage template may use.
func BaseVars(state *models.AnalysisState) map[string]any {
	info := state.Market()
	return map[string]any{
		"ticker":          state.Ticker(),
		"trade_date":      state.TradeDate(),
		"market":          info.Name,
		"currency":        info.Currency,
		"currency_symbol": info.CurrencySymbol,
	}
}

// ReportVars exposes the four analyst reports. Missing reports read as
// "Not available." so that templates never see an empty slot.
func ReportVars(state *models.AnalysisState) map[string]any {
	return map[string]any{
		"market_report":       orNA(state.SectionText(models.SectionMarket)),
		"sentiment_report":    orNA(state.SectionText(models.SectionSentiment)),
		"news_report":         orNA(state.SectionText(models.SectionNews)),
		"fundamentals_report": orNA(state.SectionText(models.SectionFundamentals)),
	}
}

// Situation joins the analyst reports into the text used for memory lookups.
func Situation(state *models.AnalysisState) string {
	var parts []string
	for _, sec := range []models.Section{models.SectionMarket, models.SectionSentiment, models.SectionNews, models.SectionFundamentals} {
		if s := strings.TrimSpace(state.SectionText(sec)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// PastMemories looks up the closest lessons for the current situation. A
// failed lookup degrades to no memories.
func PastMemories(ctx context.Context, store memory.Store, state *models.AnalysisState, k int) string {
	if store == nil {
		return memory.FormatMatches(nil)
	}
	situation := Situation(state)
	if situation == "" {
		return memory.FormatMatches(nil)
	}
	matches, err := store.Lookup(ctx, situation, k)
	if err != nil {
		logger.Get().Warnw("memory lookup failed", "run_id", state.RunID(), "error", err)
		return memory.FormatMatches(nil)
	}
	return memory.FormatMatches(matches)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not available."
	}
	return s
}
