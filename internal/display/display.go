// Package display renders run results and progress for the terminal.
package display

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/utils"
)

// Options tune Render.
type Options struct {
	// MaxSectionChars truncates each report; zero keeps them whole.
	MaxSectionChars int
	// ResultsDir is shown in the footer when set.
	ResultsDir string
}

// Render draws the summary of a finished run.
func Render(state *models.AnalysisState, d models.Decision, opts Options) string {
	var b strings.Builder

	info := state.Market()
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s | %s market (%s)",
		state.Ticker(), state.TradeDate(), info.Kind, info.Currency)))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Decision"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(renderDecision(d)))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Agents"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(renderStatuses(state.Statuses())))
	b.WriteString("\n\n")

	for _, sec := range models.SectionOrder {
		text, ok := state.Section(sec)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString(sectionStyle.Render(sec.Title()))
		b.WriteString("\n")
		b.WriteString(truncate(strings.TrimSpace(text), opts.MaxSectionChars))
		b.WriteString("\n\n")
	}

	if state.InvestDebate.Halted() || state.RiskDebate.Halted() {
		b.WriteString(errorStyle.Render("Debate interrupted: judges ruled on partial history"))
		b.WriteString("\n")
	}
	if opts.ResultsDir != "" {
		b.WriteString(infoStyle.Render("Results saved to " + opts.ResultsDir))
		b.WriteString("\n")
	}
	return b.String()
}

func renderDecision(d models.Decision) string {
	lines := []string{
		fmt.Sprintf("Action:     %s", actionStyle(d.Action).Render(string(d.Action))),
		fmt.Sprintf("Confidence: %.2f", d.Confidence),
		fmt.Sprintf("Risk score: %.2f", d.RiskScore),
	}
	if d.TargetPrice != nil {
		lines = append(lines, fmt.Sprintf("Target:     %s %s", d.TargetPrice.StringFixed(2), d.Currency))
	}
	if r := strings.TrimSpace(d.Reasoning); r != "" {
		lines = append(lines, "", truncate(r, 400))
	}
	return strings.Join(lines, "\n")
}

func renderStatuses(statuses map[string]models.AgentStatus) string {
	var lines []string
	team := ""
	for _, node := range consts.AllAgents {
		st, ok := statuses[node]
		if !ok {
			continue
		}
		if t := consts.Team(node); t != team {
			team = t
			lines = append(lines, t+":")
		}
		lines = append(lines, "  "+formatStatus(consts.DisplayName(node), st))
	}
	// stages outside the fixed roster
	var extra []string
	for node := range statuses {
		if consts.Team(node) == "" {
			extra = append(extra, node)
		}
	}
	sort.Strings(extra)
	for _, node := range extra {
		lines = append(lines, "  "+formatStatus(node, statuses[node]))
	}
	if len(lines) == 0 {
		return pendingStyle.Render("no agents ran")
	}
	return strings.Join(lines, "\n")
}

func formatStatus(name string, st models.AgentStatus) string {
	return fmt.Sprintf("%-22s %s", name, statusStyle(st).Render(string(st)))
}

func statusStyle(st models.AgentStatus) lipgloss.Style {
	switch st {
	case models.StatusInProgress:
		return inProgressStyle
	case models.StatusCompleted:
		return completedStyle
	case models.StatusError:
		return errorStyle
	}
	return pendingStyle
}

func actionStyle(a models.Action) lipgloss.Style {
	switch a {
	case models.ActionBuy:
		return buyStyle
	case models.ActionSell:
		return sellStyle
	}
	return holdStyle
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Summary is the one-line form used by batch runs.
func Summary(ticker string, d models.Decision, err error) string {
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("%-10s failed: %v", ticker, err))
	}
	return fmt.Sprintf("%-10s %s", ticker, actionStyle(d.Action).Render(utils.DecisionLine(d)))
}

func Error(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error: "+err.Error()))
}

func Info(w io.Writer, msg string) {
	fmt.Fprintln(w, infoStyle.Render(msg))
}

func Success(w io.Writer, msg string) {
	fmt.Fprintln(w, completedStyle.Render(msg))
}
