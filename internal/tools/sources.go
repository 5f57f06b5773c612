package tools

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/dataflows"
	"github.com/dyike/cortextrader/internal/market"
)

// CandleSource returns daily bars ending on or before end.
type CandleSource interface {
	Candles(ctx context.Context, info market.Info, end time.Time, days int) ([]dataflows.Candle, error)
}

// CompanyNewsSource returns news filed against a ticker.
type CompanyNewsSource interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]dataflows.NewsItem, error)
}

// NewsSearcher runs a free-text news search.
type NewsSearcher interface {
	Search(ctx context.Context, query string, from, to time.Time, limit int) ([]dataflows.NewsItem, error)
}

// CompanyInfoSource returns static reference data.
type CompanyInfoSource interface {
	CompanyInfo(ctx context.Context, info market.Info) (*dataflows.CompanyInfo, error)
}

// QuoteSource returns the latest quote.
type QuoteSource interface {
	Quote(ctx context.Context, info market.Info) (*dataflows.Quote, error)
}

// InsiderSource returns monthly insider sentiment.
type InsiderSource interface {
	InsiderSentiment(ctx context.Context, symbol string, from, to time.Time) ([]dataflows.InsiderSentiment, error)
}

// Sources holds the data clients available to tools. A nil field means
// the backing service is not configured and its tools are left out.
type Sources struct {
	Candles      CandleSource
	AsiaCandles  CandleSource
	CompanyNews  CompanyNewsSource
	NewsSearch   NewsSearcher
	CompanyInfo  CompanyInfoSource
	Quotes       QuoteSource
	InsiderTrade InsiderSource
}

// NewSources builds every client the configuration allows.
func NewSources(cfg *config.Config, log *zap.SugaredLogger) Sources {
	newCache := func(name string) *dataflows.Cache {
		dir := ""
		if cfg.DataCacheDir != "" {
			dir = filepath.Join(cfg.DataCacheDir, name)
		}
		return dataflows.NewCache(dir, cfg.CacheTTL, cfg.CacheEnabled)
	}

	yahoo := dataflows.NewYahooClient(newCache("yahoo"))
	src := Sources{
		Candles:    yahoo,
		Quotes:     yahoo,
		NewsSearch: dataflows.NewGoogleNewsClient("", newCache("google_news")),
	}

	if lp, err := dataflows.NewLongportClient(cfg.LongportAppKey, cfg.LongportAppSecret, cfg.LongportAccessToken, newCache("longport")); err == nil {
		src.AsiaCandles = lp
		src.CompanyInfo = lp
	} else {
		log.Infow("longport data disabled", "reason", err)
	}

	if fh, err := dataflows.NewFinnhubClient(cfg.FinnhubAPIKey, cfg.FinnhubRPS, newCache("finnhub")); err == nil {
		src.CompanyNews = fh
		src.InsiderTrade = fh
	} else {
		log.Infow("finnhub data disabled", "reason", err)
	}
	return src
}
