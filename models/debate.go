package models

import (
	"fmt"
	"strings"

	"github.com/dyike/cortextrader/consts"
)

const noArgument = "(no argument provided)"

// InvestDebateState is the bull/bear research debate. Histories only grow.
type InvestDebateState struct {
	BullHistory     string `json:"bull_history"`
	BearHistory     string `json:"bear_history"`
	History         string `json:"history"`
	CurrentResponse string `json:"current_response"`
	JudgeDecision   string `json:"judge_decision"`
	RoundCount      int    `json:"round_count"`
	LatestSpeaker   string `json:"latest_speaker"`
	Interrupted     bool   `json:"interrupted"`
	Judged          bool   `json:"judged"`
}

func (d *InvestDebateState) Rounds() int         { return d.RoundCount }
func (d *InvestDebateState) LastSpeaker() string { return d.LatestSpeaker }
func (d *InvestDebateState) Halted() bool        { return d.Interrupted }
func (d *InvestDebateState) Concluded() bool     { return d.Judged }
func (d *InvestDebateState) CompleteRound()      { d.RoundCount++ }
func (d *InvestDebateState) Halt()               { d.Interrupted = true }

func (d *InvestDebateState) Conclude(decision string) {
	d.JudgeDecision = decision
	d.Judged = true
}

// Record appends a labeled argument for speaker to the shared and per-side histories.
func (d *InvestDebateState) Record(speaker, argument string) error {
	var side *string
	switch speaker {
	case consts.BullResearcher:
		side = &d.BullHistory
	case consts.BearResearcher:
		side = &d.BearHistory
	default:
		return fmt.Errorf("research debate: unknown speaker %q", speaker)
	}
	line := labelArgument(speaker, argument)
	d.History = appendLine(d.History, line)
	*side = appendLine(*side, line)
	d.CurrentResponse = line
	d.LatestSpeaker = speaker
	return nil
}

// RiskDebateState is the three-way risk discussion.
type RiskDebateState struct {
	RiskyHistory           string `json:"risky_history"`
	SafeHistory            string `json:"safe_history"`
	NeutralHistory         string `json:"neutral_history"`
	History                string `json:"history"`
	CurrentRiskyResponse   string `json:"current_risky_response"`
	CurrentSafeResponse    string `json:"current_safe_response"`
	CurrentNeutralResponse string `json:"current_neutral_response"`
	JudgeDecision          string `json:"judge_decision"`
	RoundCount             int    `json:"round_count"`
	LatestSpeaker          string `json:"latest_speaker"`
	Interrupted            bool   `json:"interrupted"`
	Judged                 bool   `json:"judged"`
}

func (d *RiskDebateState) Rounds() int         { return d.RoundCount }
func (d *RiskDebateState) LastSpeaker() string { return d.LatestSpeaker }
func (d *RiskDebateState) Halted() bool        { return d.Interrupted }
func (d *RiskDebateState) Concluded() bool     { return d.Judged }
func (d *RiskDebateState) CompleteRound()      { d.RoundCount++ }
func (d *RiskDebateState) Halt()               { d.Interrupted = true }

func (d *RiskDebateState) Conclude(decision string) {
	d.JudgeDecision = decision
	d.Judged = true
}

func (d *RiskDebateState) Record(speaker, argument string) error {
	line := labelArgument(speaker, argument)
	switch speaker {
	case consts.RiskyAnalyst:
		d.RiskyHistory = appendLine(d.RiskyHistory, line)
		d.CurrentRiskyResponse = line
	case consts.SafeAnalyst:
		d.SafeHistory = appendLine(d.SafeHistory, line)
		d.CurrentSafeResponse = line
	case consts.NeutralAnalyst:
		d.NeutralHistory = appendLine(d.NeutralHistory, line)
		d.CurrentNeutralResponse = line
	default:
		return fmt.Errorf("risk debate: unknown speaker %q", speaker)
	}
	d.History = appendLine(d.History, line)
	d.LatestSpeaker = speaker
	return nil
}

func labelArgument(speaker, argument string) string {
	argument = strings.TrimSpace(argument)
	if argument == "" {
		argument = noArgument
	}
	label := consts.DisplayName(speaker)
	// researchers argue as "Bull Analyst"/"Bear Analyst" in the transcript
	label = strings.Replace(label, "Researcher", "Analyst", 1)
	return label + ": " + argument
}

func appendLine(history, line string) string {
	if history == "" {
		return line
	}
	return history + "\n" + line
}
