package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// SymbolInput is the argument of single-symbol lookups.
type SymbolInput struct {
	Symbol string `json:"symbol"`
}

func symbolParams() *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"symbol": {
			Type:     "string",
			Desc:     "Ticker symbol of the company",
			Required: true,
		},
	})
}

func newStaticInfoTool(b binding, src CompanyInfoSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        "get_static_info",
			Desc:        "Get listing reference data (name, exchange, currency, lot size) for a CN or HK security",
			ParamsOneOf: symbolParams(),
		},
		func(ctx context.Context, in SymbolInput) (string, error) {
			ci, err := src.CompanyInfo(ctx, b.resolve(in.Symbol))
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "## %s reference data\n\n", ci.Symbol)
			fmt.Fprintf(&sb, "- name: %s\n- exchange: %s\n- currency: %s\n", ci.Name, ci.Exchange, ci.Currency)
			if ci.LotSize > 0 {
				fmt.Fprintf(&sb, "- lot size: %d\n", ci.LotSize)
			}
			keys := make([]string, 0, len(ci.Fields))
			for k := range ci.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if v := ci.Fields[k]; v != "" {
					fmt.Fprintf(&sb, "- %s: %s\n", k, v)
				}
			}
			return sb.String(), nil
		},
	)
}

func newQuoteTool(b binding, src QuoteSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        "get_quote",
			Desc:        "Get the latest quote and company name for a security",
			ParamsOneOf: symbolParams(),
		},
		func(ctx context.Context, in SymbolInput) (string, error) {
			info := b.resolve(in.Symbol)
			q, err := src.Quote(ctx, info)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("## %s quote\n\n- name: %s\n- exchange: %s\n- currency: %s\n- price: %s%s\n- open: %s\n- high: %s\n- low: %s\n- volume: %d\n",
				q.Symbol, q.Name, q.Exchange, q.Currency, info.CurrencySymbol, q.Price.StringFixed(2),
				q.Open.StringFixed(2), q.High.StringFixed(2), q.Low.StringFixed(2), q.Volume), nil
		},
	)
}

func newInsiderSentimentTool(b binding, src InsiderSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        "get_insider_sentiment",
			Desc:        "Get monthly insider sentiment (MSPR) for a US company over the past quarter",
			ParamsOneOf: symbolParams(),
		},
		func(ctx context.Context, in SymbolInput) (string, error) {
			info := b.resolve(in.Symbol)
			rows, err := src.InsiderSentiment(ctx, info.YahooSymbol(), b.tradeDate.AddDate(0, -3, 0), b.tradeDate)
			if err != nil {
				return "", err
			}
			if len(rows) == 0 {
				return fmt.Sprintf("No insider sentiment reported for %s.", info.Ticker), nil
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "## %s insider sentiment\n\nmonth,change,mspr\n", info.Ticker)
			for _, r := range rows {
				fmt.Fprintf(&sb, "%04d-%02d,%d,%.2f\n", r.Year, r.Month, r.Change, r.MSPR)
			}
			return sb.String(), nil
		},
	)
}
