package utils

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dyike/cortextrader/models"
)

// ReportDir is where the results of ticker on tradeDate are written.
func ReportDir(resultsDir, ticker, tradeDate string) string {
	return filepath.Join(resultsDir, sanitize(ticker), tradeDate)
}

// WriteReports writes one markdown file per filled section, a combined
// complete_report.md, decision.json and state.json. It returns the directory.
func WriteReports(resultsDir string, state *models.AnalysisState, decision models.Decision) (string, error) {
	if strings.TrimSpace(resultsDir) == "" {
		return "", fmt.Errorf("results dir is not configured")
	}
	if state == nil {
		return "", fmt.Errorf("nil state")
	}
	dir := ReportDir(resultsDir, state.Ticker(), state.TradeDate())
	reportsDir := filepath.Join(dir, "reports")

	var full strings.Builder
	fmt.Fprintf(&full, "# Trading Analysis Report: %s\n\n", state.Ticker())
	fmt.Fprintf(&full, "Trade date: %s\n\nMarket: %s (%s)\n\n", state.TradeDate(), state.Market().Kind, state.Market().Currency)
	for _, sec := range models.SectionOrder {
		text, ok := state.Section(sec)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if err := WriteMarkdown(reportsDir, string(sec)+".md", text); err != nil {
			return dir, err
		}
		fmt.Fprintf(&full, "## %s\n\n%s\n\n", sec.Title(), strings.TrimSpace(text))
	}
	fmt.Fprintf(&full, "## Decision\n\n%s\n", DecisionLine(decision))

	if err := WriteMarkdown(dir, "complete_report.md", full.String()); err != nil {
		return dir, err
	}
	if err := WriteJSON(dir, "decision.json", decision); err != nil {
		return dir, err
	}
	if err := WriteJSON(dir, "state.json", state.Snapshot()); err != nil {
		return dir, err
	}
	return dir, nil
}

// DecisionLine is a one-line summary of d.
func DecisionLine(d models.Decision) string {
	line := fmt.Sprintf("%s (confidence %.2f, risk %.2f)", d.Action, d.Confidence, d.RiskScore)
	if d.TargetPrice != nil {
		line += fmt.Sprintf(", target %s %s", d.TargetPrice.StringFixed(2), d.Currency)
	}
	return line
}

func sanitize(ticker string) string {
	ticker = strings.TrimSpace(ticker)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, ticker)
}
