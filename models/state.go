package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/cortextrader/internal/market"
)

// Section names a report slot in the analysis state.
type Section string

const (
	SectionMarket         Section = "market"
	SectionSentiment      Section = "sentiment"
	SectionNews           Section = "news"
	SectionFundamentals   Section = "fundamentals"
	SectionInvestmentPlan Section = "investment_plan"
	SectionTraderPlan     Section = "trader_plan"
	SectionFinalDecision  Section = "final_decision"
)

// SectionOrder is the order reports are rendered and persisted in.
var SectionOrder = []Section{
	SectionMarket,
	SectionSentiment,
	SectionNews,
	SectionFundamentals,
	SectionInvestmentPlan,
	SectionTraderPlan,
	SectionFinalDecision,
}

func (s Section) Title() string {
	switch s {
	case SectionMarket:
		return "Market Analysis"
	case SectionSentiment:
		return "Social Sentiment"
	case SectionNews:
		return "News Analysis"
	case SectionFundamentals:
		return "Fundamentals Analysis"
	case SectionInvestmentPlan:
		return "Research Team Decision"
	case SectionTraderPlan:
		return "Trading Team Plan"
	case SectionFinalDecision:
		return "Portfolio Management Decision"
	}
	return string(s)
}

const tradeDateLayout = "2006-01-02"

// AnalysisState is the single record threaded through one pipeline run. It is
// owned by the run's controller and must not be shared between runs.
type AnalysisState struct {
	runID     string
	ticker    string
	tradeDate string
	market    market.Info

	messages []*schema.Message
	sections map[Section]string
	status   map[string]AgentStatus

	InvestDebate *InvestDebateState
	RiskDebate   *RiskDebateState
}

func NewAnalysisState(runID, ticker, tradeDate string, info market.Info) (*AnalysisState, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("ticker is required")
	}
	if _, err := time.Parse(tradeDateLayout, tradeDate); err != nil {
		return nil, fmt.Errorf("trade date %q must be YYYY-MM-DD: %w", tradeDate, err)
	}
	return &AnalysisState{
		runID:        runID,
		ticker:       ticker,
		tradeDate:    tradeDate,
		market:       info,
		sections:     make(map[Section]string),
		status:       make(map[string]AgentStatus),
		InvestDebate: &InvestDebateState{},
		RiskDebate:   &RiskDebateState{},
	}, nil
}

func (s *AnalysisState) RunID() string       { return s.runID }
func (s *AnalysisState) Ticker() string      { return s.ticker }
func (s *AnalysisState) TradeDate() string   { return s.tradeDate }
func (s *AnalysisState) Market() market.Info { return s.market }

// AppendMessages adds messages to the end of the transcript. Nil entries are dropped.
func (s *AnalysisState) AppendMessages(msgs ...*schema.Message) {
	for _, m := range msgs {
		if m != nil {
			s.messages = append(s.messages, m)
		}
	}
}

// Messages returns the transcript in order. The slice is a copy.
func (s *AnalysisState) Messages() []*schema.Message {
	out := make([]*schema.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastMessage returns the newest transcript entry, or nil.
func (s *AnalysisState) LastMessage() *schema.Message {
	if len(s.messages) == 0 {
		return nil
	}
	return s.messages[len(s.messages)-1]
}

func (s *AnalysisState) SetSection(sec Section, content string) {
	s.sections[sec] = content
}

// Section reports the content of sec and whether it has been set.
func (s *AnalysisState) Section(sec Section) (string, bool) {
	v, ok := s.sections[sec]
	return v, ok
}

// SectionText returns the section content or an empty string.
func (s *AnalysisState) SectionText(sec Section) string {
	return s.sections[sec]
}

// Sections returns a copy of every section that has been set.
func (s *AnalysisState) Sections() map[Section]string {
	out := make(map[Section]string, len(s.sections))
	for k, v := range s.sections {
		out[k] = v
	}
	return out
}

// Status returns pending for agents that have not started.
func (s *AnalysisState) Status(agent string) AgentStatus {
	if st, ok := s.status[agent]; ok {
		return st
	}
	return StatusPending
}

// SetStatus moves agent forward through pending, in_progress and completed.
// error may be entered from any non-terminal status and is final.
func (s *AnalysisState) SetStatus(agent string, next AgentStatus) error {
	cur := s.Status(agent)
	if !cur.CanTransition(next) {
		return fmt.Errorf("agent %s: illegal status transition %s -> %s", agent, cur, next)
	}
	s.status[agent] = next
	return nil
}

// Statuses returns a copy of the agent status table.
func (s *AnalysisState) Statuses() map[string]AgentStatus {
	out := make(map[string]AgentStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Snapshot is the serializable view of a finished run.
type Snapshot struct {
	RunID        string                 `json:"run_id"`
	Ticker       string                 `json:"ticker"`
	TradeDate    string                 `json:"trade_date"`
	Market       market.Info            `json:"market"`
	Sections     map[Section]string     `json:"report_sections"`
	InvestDebate InvestDebateState      `json:"investment_debate_state"`
	RiskDebate   RiskDebateState        `json:"risk_debate_state"`
	AgentStatus  map[string]AgentStatus `json:"agent_status"`
	MessageCount int                    `json:"message_count"`
}

func (s *AnalysisState) Snapshot() Snapshot {
	return Snapshot{
		RunID:        s.runID,
		Ticker:       s.ticker,
		TradeDate:    s.tradeDate,
		Market:       s.market,
		Sections:     s.Sections(),
		InvestDebate: *s.InvestDebate,
		RiskDebate:   *s.RiskDebate,
		AgentStatus:  s.Statuses(),
		MessageCount: len(s.messages),
	}
}
