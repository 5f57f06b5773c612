package dataflows

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one daily OHLCV bar.
type Candle struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewsItem is a single headline from any news source.
type NewsItem struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// CompanyInfo carries reference data for one listed security.
type CompanyInfo struct {
	Symbol   string            `json:"symbol"`
	Name     string            `json:"name"`
	Exchange string            `json:"exchange"`
	Currency string            `json:"currency"`
	LotSize  int64             `json:"lot_size,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Quote is the latest trading snapshot for a symbol.
type Quote struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Exchange string          `json:"exchange"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Volume   int64           `json:"volume"`
	State    string          `json:"state,omitempty"`
}

// Closes returns the close prices of candles as float64 in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

// Highs returns the high prices of candles as float64 in order.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High.InexactFloat64()
	}
	return out
}

// Lows returns the low prices of candles as float64 in order.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low.InexactFloat64()
	}
	return out
}

// trimToDate drops candles after end and keeps at most the last n.
func trimToDate(candles []Candle, end time.Time, n int) []Candle {
	cutoff := end.AddDate(0, 0, 1)
	out := candles[:0:0]
	for _, c := range candles {
		if c.Time.Before(cutoff) {
			out = append(out, c)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
