package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	fquote "github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/cortextrader/internal/market"
	apperrors "github.com/dyike/cortextrader/pkg/errors"
)

// YahooClient serves US market data from Yahoo Finance. It needs no
// credentials.
type YahooClient struct {
	cache *Cache
	retry RetryConfig

	getQuote func(symbol string) (*finance.Quote, error)
	getChart func(params *chart.Params) ([]Candle, error)
}

// NewYahooClient creates a Yahoo Finance client.
func NewYahooClient(cache *Cache) *YahooClient {
	return &YahooClient{
		cache:    cache,
		retry:    DefaultRetryConfig(),
		getQuote: fquote.Get,
		getChart: fetchChart,
	}
}

func fetchChart(params *chart.Params) ([]Candle, error) {
	iter := chart.Get(params)
	var candles []Candle
	for iter.Next() {
		bar := iter.Bar()
		candles = append(candles, Candle{
			Symbol: params.Symbol,
			Time:   time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return candles, nil
}

// Candles returns up to days daily bars ending on or before end.
func (yc *YahooClient) Candles(ctx context.Context, info market.Info, end time.Time, days int) ([]Candle, error) {
	symbol := info.YahooSymbol()
	key := map[string]any{"symbol": symbol, "end": end.Format("2006-01-02"), "days": days}

	var cached []Candle
	if yc.cache.Get("yahoo", "candles", key, &cached) {
		return cached, nil
	}

	// Calendar days outnumber trading days; pad the window.
	start := end.AddDate(0, 0, -(days*7/5 + 10))
	stop := end.AddDate(0, 0, 1)

	var candles []Candle
	err := WithRetry(ctx, yc.retry, func(ctx context.Context) error {
		var err error
		candles, err = yc.getChart(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&stop),
			Interval: datetime.OneDay,
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "yahoo.candles", fmt.Errorf("%s: %w", symbol, err))
	}
	candles = trimToDate(candles, end, days)

	yc.cache.Set("yahoo", "candles", key, candles)
	return candles, nil
}

// Quote returns the latest quote for the security.
func (yc *YahooClient) Quote(ctx context.Context, info market.Info) (*Quote, error) {
	symbol := info.YahooSymbol()

	var cached Quote
	if yc.cache.Get("yahoo", "quote", symbol, &cached) {
		return &cached, nil
	}

	var q *finance.Quote
	err := WithRetry(ctx, yc.retry, func(ctx context.Context) error {
		var err error
		q, err = yc.getQuote(symbol)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "yahoo.quote", fmt.Errorf("%s: %w", symbol, err))
	}
	if q == nil {
		return nil, apperrors.Wrapf(apperrors.KindTool, "yahoo.quote", "no quote for %s", symbol)
	}

	out := &Quote{
		Symbol:   symbol,
		Name:     q.ShortName,
		Exchange: q.FullExchangeName,
		Currency: q.CurrencyID,
		Price:    decimal.NewFromFloat(q.RegularMarketPrice),
		Open:     decimal.NewFromFloat(q.RegularMarketOpen),
		High:     decimal.NewFromFloat(q.RegularMarketDayHigh),
		Low:      decimal.NewFromFloat(q.RegularMarketDayLow),
		Volume:   int64(q.RegularMarketVolume),
		State:    string(q.MarketState),
	}
	yc.cache.Set("yahoo", "quote", symbol, out)
	return out, nil
}
