package dataflows

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	apperrors "github.com/dyike/cortextrader/pkg/errors"
)

const googleNewsBaseURL = "https://news.google.com"

// GoogleNewsClient scrapes the Google News search page.
type GoogleNewsClient struct {
	client  *resty.Client
	cache   *Cache
	retry   RetryConfig
	baseURL string
	now     func() time.Time
}

// NewGoogleNewsClient creates a scraper. An empty baseURL uses Google News.
func NewGoogleNewsClient(baseURL string, cache *Cache) *GoogleNewsClient {
	if baseURL == "" {
		baseURL = googleNewsBaseURL
	}
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; cortextrader/1.0)")

	return &GoogleNewsClient{
		client:  client,
		cache:   cache,
		retry:   DefaultRetryConfig(),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Search returns up to limit articles matching query between from and to.
func (gc *GoogleNewsClient) Search(ctx context.Context, query string, from, to time.Time, limit int) ([]NewsItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.Wrapf(apperrors.KindTool, "google_news.search", "search query cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}
	key := map[string]any{
		"query": query,
		"from":  from.Format("2006-01-02"),
		"to":    to.Format("2006-01-02"),
		"limit": limit,
	}

	var cached []NewsItem
	if gc.cache.Get("google_news", "search", key, &cached) {
		return cached, nil
	}

	var items []NewsItem
	err := WithRetry(ctx, gc.retry, func(ctx context.Context) error {
		resp, err := gc.client.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			Get(gc.searchURL(query, from, to))
		if err != nil {
			return fmt.Errorf("fetch google news: %w", err)
		}
		body := resp.RawBody()
		defer body.Close()

		if code := resp.StatusCode(); code != http.StatusOK {
			if code == http.StatusTooManyRequests || code >= 500 {
				return fmt.Errorf("HTTP error %d", code)
			}
			return Permanent(fmt.Errorf("HTTP error %d", code))
		}
		items, err = gc.parse(body)
		return err
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTool, "google_news.search", err)
	}
	if len(items) > limit {
		items = items[:limit]
	}

	gc.cache.Set("google_news", "search", key, items)
	return items, nil
}

func (gc *GoogleNewsClient) searchURL(query string, from, to time.Time) string {
	q := query
	if !from.IsZero() && !to.IsZero() {
		q += fmt.Sprintf(" after:%s before:%s", from.Format("2006-01-02"), to.AddDate(0, 0, 1).Format("2006-01-02"))
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("hl", "en-US")
	v.Set("gl", "US")
	v.Set("ceid", "US:en")
	return gc.baseURL + "/search?" + v.Encode()
}

func (gc *GoogleNewsClient) parse(r io.Reader) ([]NewsItem, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, Permanent(fmt.Errorf("parse HTML: %w", err))
	}

	var items []NewsItem
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("h4").First().Text())
		}
		if title == "" {
			title = strings.TrimSpace(s.Find("a[href]").Last().Text())
		}
		if title == "" {
			return
		}
		href, ok := s.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}

		source := strings.TrimSpace(s.Find("div[data-n-tid]").First().Text())
		if source == "" {
			source = "Google News"
		}

		published := gc.now()
		timeSel := s.Find("time").First()
		if dt, ok := timeSel.Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, dt); err == nil {
				published = t
			}
		} else {
			published = parseRelativeTime(gc.now(), timeSel.Text())
		}

		items = append(items, NewsItem{
			Title:       title,
			URL:         gc.cleanURL(href),
			Source:      source,
			PublishedAt: published.UTC(),
		})
	})
	return items, nil
}

// cleanURL unwraps redirect links and resolves relative ones.
func (gc *GoogleNewsClient) cleanURL(href string) string {
	if _, after, ok := strings.Cut(href, "url="); ok {
		if decoded, err := url.QueryUnescape(after); err == nil {
			return decoded
		}
	}
	if strings.HasPrefix(href, "./") {
		return gc.baseURL + href[1:]
	}
	if strings.HasPrefix(href, "/") {
		return gc.baseURL + href
	}
	return href
}

var relativeTimeRe = regexp.MustCompile(`(\d+)\s*(minute|min|hour|day|week)s?\s*ago`)

// parseRelativeTime turns "3 hours ago" style labels into a timestamp.
// Unparseable labels are treated as one hour old.
func parseRelativeTime(now time.Time, text string) time.Time {
	text = strings.ToLower(strings.TrimSpace(text))
	switch text {
	case "just now", "now":
		return now
	case "yesterday":
		return now.Add(-24 * time.Hour)
	}
	m := relativeTimeRe.FindStringSubmatch(text)
	if m == nil {
		return now.Add(-time.Hour)
	}
	n, _ := strconv.Atoi(m[1])
	var unit time.Duration
	switch m[2] {
	case "minute", "min":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	}
	return now.Add(-time.Duration(n) * unit)
}
