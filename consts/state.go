package consts

var displayNames = map[string]string{
	// Analyst Team
	MarketAnalyst:       "Market Analyst",
	SocialMediaAnalyst:  "Social Analyst",
	NewsAnalyst:         "News Analyst",
	FundamentalsAnalyst: "Fundamentals Analyst",
	// Research Team
	BullResearcher:  "Bull Researcher",
	BearResearcher:  "Bear Researcher",
	ResearchManager: "Research Manager",
	// Trading Team
	Trader: "Trader",
	// Risk Management Team
	RiskyAnalyst:   "Risky Analyst",
	SafeAnalyst:    "Safe Analyst",
	NeutralAnalyst: "Neutral Analyst",
	// Portfolio Management Team
	PortfolioManager: "Portfolio Manager",
}

// DisplayName returns the human-readable agent name for a node.
func DisplayName(node string) string {
	if n, ok := displayNames[node]; ok {
		return n
	}
	return node
}

// Team groups nodes for progress display.
func Team(node string) string {
	switch node {
	case MarketAnalyst, SocialMediaAnalyst, NewsAnalyst, FundamentalsAnalyst:
		return "Analyst Team"
	case BullResearcher, BearResearcher, ResearchManager:
		return "Research Team"
	case Trader:
		return "Trading Team"
	case RiskyAnalyst, SafeAnalyst, NeutralAnalyst:
		return "Risk Management"
	case PortfolioManager:
		return "Portfolio Management"
	}
	return ""
}

// AllAgents lists every node in pipeline order.
var AllAgents = []string{
	MarketAnalyst, SocialMediaAnalyst, NewsAnalyst, FundamentalsAnalyst,
	BullResearcher, BearResearcher, ResearchManager,
	Trader,
	RiskyAnalyst, SafeAnalyst, NeutralAnalyst,
	PortfolioManager,
}
