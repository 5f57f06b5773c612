// Package market classifies tickers into the exchanges the data tools and
// decision extraction care about.
package market

import (
	"fmt"
	"regexp"
	"strings"
)

type Kind string

const (
	US         Kind = "US"
	CNMainland Kind = "CN"
	HK         Kind = "HK"
)

// Info is computed once per run and shared by every stage.
type Info struct {
	Kind           Kind   `json:"kind"`
	Ticker         string `json:"ticker"`
	Currency       string `json:"currency"`
	CurrencySymbol string `json:"currency_symbol"`
	Name           string `json:"name"`
}

var cnPattern = regexp.MustCompile(`^\d{6}(\.(SH|SZ|SS))?$`)

// Classify maps a ticker to its market: six-digit codes are mainland China,
// a .HK suffix is Hong Kong, anything else is treated as US.
func Classify(ticker string) Info {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	switch {
	case cnPattern.MatchString(t):
		return infoFor(CNMainland, t)
	case strings.HasSuffix(t, ".HK"):
		return infoFor(HK, t)
	default:
		return infoFor(US, t)
	}
}

// ClassifyWithOverride forces the market when override is a known kind.
func ClassifyWithOverride(ticker, override string) (Info, error) {
	if strings.TrimSpace(override) == "" {
		return Classify(ticker), nil
	}
	kind, err := ParseKind(override)
	if err != nil {
		return Info{}, err
	}
	return infoFor(kind, strings.ToUpper(strings.TrimSpace(ticker))), nil
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "US":
		return US, nil
	case "CN", "CN_MAINLAND", "A":
		return CNMainland, nil
	case "HK":
		return HK, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

func infoFor(kind Kind, ticker string) Info {
	info := Info{Kind: kind, Ticker: ticker}
	switch kind {
	case CNMainland:
		info.Currency, info.CurrencySymbol, info.Name = "CNY", "¥", "China A-share"
	case HK:
		info.Currency, info.CurrencySymbol, info.Name = "HKD", "HK$", "Hong Kong"
	default:
		info.Currency, info.CurrencySymbol, info.Name = "USD", "$", "US"
	}
	return info
}

// LongportSymbol renders the ticker in longport's CODE.MARKET form.
func (i Info) LongportSymbol() string {
	code := baseCode(i.Ticker)
	switch i.Kind {
	case CNMainland:
		if strings.HasPrefix(code, "6") || strings.HasPrefix(code, "9") {
			return code + ".SH"
		}
		return code + ".SZ"
	case HK:
		return strings.TrimLeft(code, "0") + ".HK"
	default:
		return code + ".US"
	}
}

// YahooSymbol renders the ticker the way Yahoo Finance expects it.
func (i Info) YahooSymbol() string {
	code := baseCode(i.Ticker)
	switch i.Kind {
	case CNMainland:
		if strings.HasPrefix(code, "6") || strings.HasPrefix(code, "9") {
			return code + ".SS"
		}
		return code + ".SZ"
	case HK:
		code = strings.TrimLeft(code, "0")
		for len(code) < 4 {
			code = "0" + code
		}
		return code + ".HK"
	default:
		return code
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Ticker, i.Name, i.Currency)
}

func baseCode(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if idx := strings.LastIndex(t, "."); idx > 0 {
		switch t[idx+1:] {
		case "SH", "SZ", "SS", "HK", "US":
			return t[:idx]
		}
	}
	return t
}
