package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

const (
	DefaultConfidence = 0.7
	DefaultRiskScore  = 0.5
)

// ParseAction normalizes English and Chinese recommendation words.
func ParseAction(s string) (Action, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case "BUY", "STRONG BUY", "LONG", "买入", "增持", "买":
		return ActionBuy, true
	case "SELL", "STRONG SELL", "SHORT", "卖出", "减持", "卖":
		return ActionSell, true
	case "HOLD", "NEUTRAL", "持有", "观望", "中性":
		return ActionHold, true
	}
	return "", false
}

// Decision is the structured recommendation extracted from the portfolio
// manager's final text.
type Decision struct {
	Action      Action           `json:"action"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	Confidence  float64          `json:"confidence"`
	RiskScore   float64          `json:"risk_score"`
	Reasoning   string           `json:"reasoning"`
	Currency    string           `json:"currency,omitempty"`
	Source      string           `json:"source,omitempty"`
}

// NeutralDecision is a HOLD with default confidence and risk.
func NeutralDecision(reasoning string) Decision {
	return Decision{
		Action:     ActionHold,
		Confidence: DefaultConfidence,
		RiskScore:  DefaultRiskScore,
		Reasoning:  reasoning,
	}
}

// Normalize forces the decision into its valid domain: unknown actions become
// HOLD, scores are clamped to [0,1] and non-positive prices are dropped.
func (d Decision) Normalize() Decision {
	switch d.Action {
	case ActionBuy, ActionHold, ActionSell:
	default:
		d.Action = ActionHold
	}
	d.Confidence = clamp01(d.Confidence)
	d.RiskScore = clamp01(d.RiskScore)
	if d.TargetPrice != nil && !d.TargetPrice.IsPositive() {
		d.TargetPrice = nil
	}
	return d
}

func clamp01(v float64) float64 {
	switch {
	case v != v:
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
