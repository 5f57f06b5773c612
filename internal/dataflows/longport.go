package dataflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"

	"github.com/dyike/cortextrader/internal/market"
	apperrors "github.com/dyike/cortextrader/pkg/errors"
)

type longportQuoter interface {
	Candlesticks(ctx context.Context, symbol string, period quote.Period, count int32, adjustType quote.AdjustType) ([]*quote.Candlestick, error)
	StaticInfo(ctx context.Context, symbols []string) ([]*quote.StaticInfo, error)
}

// LongportClient serves CN and HK market data from the Longport quote API.
type LongportClient struct {
	quoteCtx longportQuoter
	cache    *Cache
	retry    RetryConfig
}

// NewLongportClient connects a quote context with the given credentials.
func NewLongportClient(appKey, appSecret, accessToken string, cache *Cache) (*LongportClient, error) {
	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, apperrors.Wrap(apperrors.KindConfig, "longport.new", apperrors.ErrNotConfigured)
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(appKey, appSecret, accessToken))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "longport.new", err)
	}
	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "longport.new", err)
	}
	return newLongportClient(quoteContext, cache), nil
}

func newLongportClient(q longportQuoter, cache *Cache) *LongportClient {
	return &LongportClient{quoteCtx: q, cache: cache, retry: DefaultRetryConfig()}
}

// Candles returns up to days daily bars ending on or before end.
func (lpc *LongportClient) Candles(ctx context.Context, info market.Info, end time.Time, days int) ([]Candle, error) {
	symbol := info.LongportSymbol()
	key := map[string]any{"symbol": symbol, "end": end.Format("2006-01-02"), "days": days}

	var cached []Candle
	if lpc.cache.Get("longport", "candles", key, &cached) {
		return cached, nil
	}

	// The API counts back from today, so ask for enough bars to cover end.
	count := days + int(time.Since(end).Hours()/24) + 1
	if count < days {
		count = days
	}
	if count > 1000 {
		count = 1000
	}

	var sticks []*quote.Candlestick
	err := WithRetry(ctx, lpc.retry, func(ctx context.Context) error {
		var err error
		sticks, err = lpc.quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "longport.candles", fmt.Errorf("%s: %w", symbol, err))
	}

	candles := make([]Candle, 0, len(sticks))
	for _, stick := range sticks {
		if stick == nil {
			continue
		}
		open, _ := stick.Open.Float64()
		high, _ := stick.High.Float64()
		low, _ := stick.Low.Float64()
		closePrice, _ := stick.Close.Float64()
		candles = append(candles, Candle{
			Symbol: symbol,
			Time:   time.Unix(stick.Timestamp, 0).UTC(),
			Open:   decimal.NewFromFloat(open),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(closePrice),
			Volume: stick.Volume,
		})
	}
	candles = trimToDate(candles, end, days)

	lpc.cache.Set("longport", "candles", key, candles)
	return candles, nil
}

// CompanyInfo returns static reference data for the security.
func (lpc *LongportClient) CompanyInfo(ctx context.Context, info market.Info) (*CompanyInfo, error) {
	symbol := info.LongportSymbol()

	var cached CompanyInfo
	if lpc.cache.Get("longport", "static_info", symbol, &cached) {
		return &cached, nil
	}

	var infos []*quote.StaticInfo
	err := WithRetry(ctx, lpc.retry, func(ctx context.Context) error {
		var err error
		infos, err = lpc.quoteCtx.StaticInfo(ctx, []string{symbol})
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "longport.static_info", fmt.Errorf("%s: %w", symbol, err))
	}
	if len(infos) == 0 || infos[0] == nil {
		return nil, apperrors.Wrapf(apperrors.KindTool, "longport.static_info", "no static info for %s", symbol)
	}

	si := infos[0]
	name := si.NameEn
	if strings.TrimSpace(name) == "" {
		name = si.NameCn
	}
	out := &CompanyInfo{
		Symbol:   si.Symbol,
		Name:     name,
		Exchange: si.Exchange,
		Currency: si.Currency,
		LotSize:  int64(si.LotSize),
		Fields: map[string]string{
			"name_cn": si.NameCn,
			"name_en": si.NameEn,
		},
	}
	lpc.cache.Set("longport", "static_info", symbol, out)
	return out, nil
}
