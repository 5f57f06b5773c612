package tools

import (
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dyike/cortextrader/consts"
	"github.com/dyike/cortextrader/internal/market"
)

const (
	defaultLookBackDays = 30
	maxLookBackDays     = 365
	newsLimit           = 15
)

// Toolkit hands each analyst the tools that fit its role and the market of
// the ticker under analysis.
type Toolkit struct {
	src Sources
}

// NewToolkit creates a toolkit over src.
func NewToolkit(src Sources) *Toolkit {
	return &Toolkit{src: src}
}

// For returns the tools bound to analyst for a run on info as of tradeDate.
// Non-analyst stages get no tools.
func (tk *Toolkit) For(analyst string, info market.Info, tradeDate time.Time) []tool.InvokableTool {
	b := binding{info: info, tradeDate: tradeDate}
	var out []tool.InvokableTool

	switch analyst {
	case consts.AnalystMarket:
		if cs := tk.candleSource(info); cs != nil {
			out = append(out, newCandlesTool(b, cs), newIndicatorsTool(b, cs))
		}
	case consts.AnalystSocial:
		if tk.src.CompanyNews != nil && info.Kind == market.US {
			out = append(out, newCompanyNewsTool(b, tk.src.CompanyNews))
		}
		if tk.src.NewsSearch != nil {
			out = append(out, newNewsSearchTool(b, tk.src.NewsSearch))
		}
	case consts.AnalystNews:
		if tk.src.NewsSearch != nil {
			out = append(out, newNewsSearchTool(b, tk.src.NewsSearch))
		}
		if tk.src.CompanyNews != nil && info.Kind == market.US {
			out = append(out, newCompanyNewsTool(b, tk.src.CompanyNews))
		}
	case consts.AnalystFundamentals:
		if info.Kind != market.US && tk.src.CompanyInfo != nil {
			out = append(out, newStaticInfoTool(b, tk.src.CompanyInfo))
		}
		if tk.src.Quotes != nil {
			out = append(out, newQuoteTool(b, tk.src.Quotes))
		}
		if tk.src.InsiderTrade != nil && info.Kind == market.US {
			out = append(out, newInsiderSentimentTool(b, tk.src.InsiderTrade))
		}
	}
	return out
}

func (tk *Toolkit) candleSource(info market.Info) CandleSource {
	if info.Kind != market.US && tk.src.AsiaCandles != nil {
		return tk.src.AsiaCandles
	}
	return tk.src.Candles
}

// binding fixes the run context a tool answers for.
type binding struct {
	info      market.Info
	tradeDate time.Time
}

// resolve maps the symbol an LLM passed back to market info. Symbols that
// name the run's ticker keep the run's classification, including overrides.
func (b binding) resolve(symbol string) market.Info {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" || symbol == b.info.Ticker {
		return b.info
	}
	return market.Classify(symbol)
}

func lookBack(days int) int {
	switch {
	case days <= 0:
		return defaultLookBackDays
	case days > maxLookBackDays:
		return maxLookBackDays
	}
	return days
}
