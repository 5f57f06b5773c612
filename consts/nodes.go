package consts

// Graph node names. Each agent stage runs as one node.
const (
	// 分析师节点
	MarketAnalyst       = "market_analyst"
	SocialMediaAnalyst  = "social_media_analyst"
	NewsAnalyst         = "news_analyst"
	FundamentalsAnalyst = "fundamentals_analyst"

	// 研究员节点
	BullResearcher  = "bull_researcher"
	BearResearcher  = "bear_researcher"
	ResearchManager = "research_manager"

	// 交易员节点
	Trader = "trader"

	// 风险分析节点
	RiskyAnalyst     = "risky_analyst"
	SafeAnalyst      = "safe_analyst"
	NeutralAnalyst   = "neutral_analyst"
	PortfolioManager = "portfolio_manager"
)

// Analyst selections accepted from configuration and the CLI.
const (
	AnalystMarket       = "market"
	AnalystSocial       = "social"
	AnalystNews         = "news"
	AnalystFundamentals = "fundamentals"
)

// AnalystOrder is the canonical execution order of the analyst team.
var AnalystOrder = []string{AnalystMarket, AnalystSocial, AnalystNews, AnalystFundamentals}

var analystNodes = map[string]string{
	AnalystMarket:       MarketAnalyst,
	AnalystSocial:       SocialMediaAnalyst,
	AnalystNews:         NewsAnalyst,
	AnalystFundamentals: FundamentalsAnalyst,
}

// AnalystNode returns the node name for an analyst selection.
func AnalystNode(analyst string) (string, bool) {
	n, ok := analystNodes[analyst]
	return n, ok
}

// IsAnalystNode reports whether node belongs to the analyst team.
func IsAnalystNode(node string) bool {
	for _, n := range analystNodes {
		if n == node {
			return true
		}
	}
	return false
}
