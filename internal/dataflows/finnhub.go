package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/dyike/cortextrader/pkg/errors"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient fetches company news and insider data from Finnhub. Calls
// share one rate limiter so that batch runs stay inside the free tier.
type FinnhubClient struct {
	client  *resty.Client
	cache   *Cache
	limiter *rate.Limiter
	retry   RetryConfig
	apiKey  string
}

// FinnhubOption customizes a FinnhubClient.
type FinnhubOption func(*FinnhubClient)

// WithFinnhubBaseURL points the client at another endpoint.
func WithFinnhubBaseURL(url string) FinnhubOption {
	return func(fc *FinnhubClient) { fc.client.SetBaseURL(url) }
}

// WithFinnhubRetry replaces the retry policy.
func WithFinnhubRetry(cfg RetryConfig) FinnhubOption {
	return func(fc *FinnhubClient) { fc.retry = cfg }
}

// NewFinnhubClient creates a client limited to rps requests per second.
func NewFinnhubClient(apiKey string, rps float64, cache *Cache, opts ...FinnhubOption) (*FinnhubClient, error) {
	if apiKey == "" {
		return nil, apperrors.Wrap(apperrors.KindConfig, "finnhub.new", apperrors.ErrNotConfigured)
	}
	if rps <= 0 {
		rps = 1
	}

	client := resty.New()
	client.SetBaseURL(finnhubBaseURL)
	client.SetTimeout(30 * time.Second)

	fc := &FinnhubClient{
		client:  client,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   DefaultRetryConfig(),
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(fc)
	}
	return fc, nil
}

type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	ID       int64  `json:"id"`
	Related  string `json:"related"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// InsiderSentiment is Finnhub's monthly share purchase ratio.
type InsiderSentiment struct {
	Symbol string  `json:"symbol"`
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Change int64   `json:"change"`
	MSPR   float64 `json:"mspr"`
}

func (fc *FinnhubClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	return WithRetry(ctx, fc.retry, func(ctx context.Context) error {
		if err := fc.limiter.Wait(ctx); err != nil {
			return err
		}
		query := map[string]string{"token": fc.apiKey}
		for k, v := range params {
			query[k] = v
		}
		resp, err := fc.client.R().
			SetContext(ctx).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			return fmt.Errorf("request %s: %w", path, err)
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("API error %d", code)
		case code != http.StatusOK:
			return Permanent(fmt.Errorf("API error %d: %s", code, resp.String()))
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return Permanent(fmt.Errorf("parse %s response: %w", path, err))
		}
		return nil
	})
}

// CompanyNews returns news about symbol published between from and to.
func (fc *FinnhubClient) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]NewsItem, error) {
	params := map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}

	var cached []NewsItem
	if fc.cache.Get("finnhub", "company_news", params, &cached) {
		return cached, nil
	}

	var raw []finnhubNews
	if err := fc.get(ctx, "/company-news", params, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "finnhub.company_news", fmt.Errorf("%s: %w", symbol, err))
	}

	items := make([]NewsItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, NewsItem{
			Title:       n.Headline,
			Summary:     n.Summary,
			URL:         n.URL,
			Source:      n.Source,
			PublishedAt: time.Unix(n.DateTime, 0).UTC(),
		})
	}
	fc.cache.Set("finnhub", "company_news", params, items)
	return items, nil
}

// InsiderSentiment returns monthly insider sentiment between from and to.
func (fc *FinnhubClient) InsiderSentiment(ctx context.Context, symbol string, from, to time.Time) ([]InsiderSentiment, error) {
	params := map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}

	var cached []InsiderSentiment
	if fc.cache.Get("finnhub", "insider_sentiment", params, &cached) {
		return cached, nil
	}

	var resp struct {
		Data []InsiderSentiment `json:"data"`
	}
	if err := fc.get(ctx, "/stock/insider-sentiment", params, &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "finnhub.insider_sentiment", fmt.Errorf("%s: %w", symbol, err))
	}
	fc.cache.Set("finnhub", "insider_sentiment", params, resp.Data)
	return resp.Data, nil
}
