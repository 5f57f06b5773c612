package processing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/dyike/cortextrader/internal/market"
	"github.com/dyike/cortextrader/models"
	"github.com/dyike/cortextrader/pkg/errors"
)

var (
	greedyObject = regexp.MustCompile(`(?s)\{.*\}`)

	// earliest keyword in the text decides the action
	actionKeyword = regexp.MustCompile(`(?i)(买入|增持|卖出|减持|持有|观望|\bbuy\b|\bsell\b|\bhold\b)`)

	targetPrice = regexp.MustCompile(`(?i)(?:目标价[位格]?|target\s+price|price\s+target)\s*(?:[:：]|is|of|at)?\s*(?:is|of|at)?\s*(?:HK\$|US\$|[$¥￥]|RMB|CNY|USD|HKD)?\s*(\d[\d,]*(?:\.\d+)?)`)
	confidence  = regexp.MustCompile(`(?i)(?:confidence|置信度|信心)\s*(?:level|score|水平)?\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(%)?`)
	riskScore   = regexp.MustCompile(`(?i)(?:risk\s*score|risk\s*level|风险评分|风险分数)\s*[:：]?\s*(\d+(?:\.\d+)?)\s*(%)?`)
	numberLike  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

const maxReasoningRunes = 600

// extractJSONObject returns the first JSON object embedded in s. The widest
// {...} span is tried first, then each balanced object from the left.
func extractJSONObject(s string) (string, bool) {
	if m := greedyObject.FindString(s); m != "" && gjson.Valid(m) {
		return m, true
	}
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if obj, ok := balancedObject(s[start:]); ok && gjson.Valid(obj) {
			return obj, true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// balancedObject scans from s[0] == '{' to its matching brace, skipping
// braces inside string literals.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// parseStructured turns the model's JSON into a Decision.
func parseStructured(js, raw string, info market.Info) (models.Decision, error) {
	const op = "processing.parse"
	if !gjson.Valid(js) {
		return models.Decision{}, errors.Wrap(errors.KindExtraction, op, errors.ErrNoJSON)
	}
	r := gjson.Parse(js)

	action, ok := models.ParseAction(r.Get("action").String())
	if !ok {
		return models.Decision{}, errors.Wrapf(errors.KindExtraction, op, "unrecognized action %q", r.Get("action").String())
	}

	d := models.Decision{
		Action:     action,
		Confidence: score(r.Get("confidence"), models.DefaultConfidence),
		RiskScore:  score(r.Get("risk_score"), models.DefaultRiskScore),
		Reasoning:  strings.TrimSpace(r.Get("reasoning").String()),
		Currency:   info.Currency,
		Source:     "structured",
	}
	d.TargetPrice = priceFrom(r.Get("target_price"))
	if d.TargetPrice == nil {
		d.TargetPrice = findTargetPrice(raw)
	}
	if d.Reasoning == "" {
		d.Reasoning = summarize(raw)
	}
	return d.Normalize(), nil
}

func priceFrom(v gjson.Result) *decimal.Decimal {
	switch v.Type {
	case gjson.Number:
		p, err := decimal.NewFromString(v.Raw)
		if err != nil {
			return nil
		}
		return &p
	case gjson.String:
		return parsePrice(numberLike.FindString(v.String()))
	}
	return nil
}

// score reads a 0..1 value, accepting percentages written as 0..100.
func score(v gjson.Result, def float64) float64 {
	switch v.Type {
	case gjson.Number:
		return fromPercent(v.Float(), false)
	case gjson.String:
		s := strings.TrimSpace(v.String())
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return def
		}
		return fromPercent(parsed, strings.HasSuffix(s, "%"))
	}
	return def
}

// fromPercent scales f to 0..1 when it carries a percent sign or is too large
// to be a fraction. Values just above 1 are left for Normalize to clamp.
func fromPercent(f float64, pct bool) float64 {
	if pct || f >= 2 {
		return f / 100
	}
	return f
}

// fallbackDecision scans raw text with fixed patterns. It never fails.
func fallbackDecision(raw string, info market.Info) models.Decision {
	d := models.NeutralDecision(summarize(raw))
	d.Currency = info.Currency
	d.Source = "fallback"

	if m := actionKeyword.FindString(raw); m != "" {
		if a, ok := models.ParseAction(m); ok {
			d.Action = a
		}
	}
	d.TargetPrice = findTargetPrice(raw)
	if v, ok := findScore(confidence, raw); ok {
		d.Confidence = v
	}
	if v, ok := findScore(riskScore, raw); ok {
		d.RiskScore = v
	}
	return d.Normalize()
}

func findTargetPrice(raw string) *decimal.Decimal {
	m := targetPrice.FindStringSubmatch(raw)
	if len(m) < 2 {
		return nil
	}
	return parsePrice(m[1])
}

func parsePrice(s string) *decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	p, err := decimal.NewFromString(s)
	if err != nil || !p.IsPositive() {
		return nil
	}
	return &p
}

func findScore(re *regexp.Regexp, raw string) (float64, bool) {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return fromPercent(f, len(m) > 2 && m[2] == "%"), true
}

func summarize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "no recommendation text was provided"
	}
	r := []rune(raw)
	if len(r) <= maxReasoningRunes {
		return raw
	}
	return string(r[:maxReasoningRunes]) + "..."
}
