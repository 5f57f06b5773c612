package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/cortextrader/internal/dataflows"
)

// NewsInput is the argument of the news tools.
type NewsInput struct {
	Symbol       string `json:"symbol"`
	Query        string `json:"query"`
	LookBackDays int    `json:"look_back_days"`
}

func newCompanyNewsTool(b binding, src CompanyNewsSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_company_news",
			Desc: "Get news articles filed against a company in the days before the analysis date",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "Ticker symbol of the company",
					Required: true,
				},
				"look_back_days": {
					Type: "integer",
					Desc: "How many days to look back (default 7)",
				},
			}),
		},
		func(ctx context.Context, in NewsInput) (string, error) {
			info := b.resolve(in.Symbol)
			days := in.LookBackDays
			if days <= 0 {
				days = 7
			}
			from := b.tradeDate.AddDate(0, 0, -lookBack(days))
			items, err := src.CompanyNews(ctx, info.YahooSymbol(), from, b.tradeDate)
			if err != nil {
				return "", err
			}
			return formatNews(fmt.Sprintf("%s company news", info.Ticker), items, newsLimit), nil
		},
	)
}

func newNewsSearchTool(b binding, src NewsSearcher) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_google_news",
			Desc: "Search Google News for articles published in the days before the analysis date",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search query, usually the company name or ticker",
					Required: true,
				},
				"look_back_days": {
					Type: "integer",
					Desc: "How many days to look back (default 7)",
				},
			}),
		},
		func(ctx context.Context, in NewsInput) (string, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				query = strings.TrimSpace(in.Symbol)
			}
			if query == "" {
				query = b.info.Ticker
			}
			days := in.LookBackDays
			if days <= 0 {
				days = 7
			}
			from := b.tradeDate.AddDate(0, 0, -lookBack(days))
			items, err := src.Search(ctx, query, from, b.tradeDate, newsLimit)
			if err != nil {
				return "", err
			}
			return formatNews(fmt.Sprintf("Google News: %s", query), items, newsLimit), nil
		},
	)
}

func formatNews(title string, items []dataflows.NewsItem, limit int) string {
	if len(items) == 0 {
		return fmt.Sprintf("## %s\n\nNo articles found.", title)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(&sb, "### %s (%s, %s)\n", it.Title, it.Source, it.PublishedAt.Format("2006-01-02"))
		if s := strings.TrimSpace(it.Summary); s != "" {
			sb.WriteString(s)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
