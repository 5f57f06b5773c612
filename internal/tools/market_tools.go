package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/markcheno/go-talib"

	"github.com/dyike/cortextrader/internal/dataflows"
	apperrors "github.com/dyike/cortextrader/pkg/errors"
)

// CandlesInput is the argument of get_candles.
type CandlesInput struct {
	Symbol       string `json:"symbol"`
	LookBackDays int    `json:"look_back_days"`
}

// IndicatorInput is the argument of get_indicators.
type IndicatorInput struct {
	Symbol       string `json:"symbol"`
	Indicator    string `json:"indicator"`
	LookBackDays int    `json:"look_back_days"`
}

func newCandlesTool(b binding, src CandleSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_candles",
			Desc: "Get daily OHLCV candles for a stock ending on the analysis date",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "Ticker symbol of the company",
					Required: true,
				},
				"look_back_days": {
					Type: "integer",
					Desc: "Number of trading days to return (default 30)",
				},
			}),
		},
		func(ctx context.Context, in CandlesInput) (string, error) {
			info := b.resolve(in.Symbol)
			candles, err := src.Candles(ctx, info, b.tradeDate, lookBack(in.LookBackDays))
			if err != nil {
				return "", err
			}
			if len(candles) == 0 {
				return fmt.Sprintf("No candles found for %s up to %s.", info.Ticker, b.tradeDate.Format("2006-01-02")), nil
			}
			return formatCandles(info.Ticker, info.CurrencySymbol, candles), nil
		},
	)
}

func formatCandles(ticker, currencySymbol string, candles []dataflows.Candle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s daily candles (%s to %s, prices in %s)\n\n",
		ticker,
		candles[0].Time.Format("2006-01-02"),
		candles[len(candles)-1].Time.Format("2006-01-02"),
		currencySymbol)
	sb.WriteString("date,open,high,low,close,volume\n")
	for _, c := range candles {
		fmt.Fprintf(&sb, "%s,%s,%s,%s,%s,%d\n",
			c.Time.Format("2006-01-02"),
			c.Open.StringFixed(2), c.High.StringFixed(2), c.Low.StringFixed(2), c.Close.StringFixed(2),
			c.Volume)
	}
	return sb.String()
}

type indicatorSpec struct {
	desc   string
	warmup int // bars needed before the first valid value
	calc   func(candles []dataflows.Candle) []float64
}

var indicators = map[string]indicatorSpec{
	"close_10_ema": {
		desc:   "10 EMA: fast-reacting average for short-term momentum shifts; noisy in sideways markets.",
		warmup: 10,
		calc:   func(c []dataflows.Candle) []float64 { return talib.Ema(dataflows.Closes(c), 10) },
	},
	"close_50_sma": {
		desc:   "50 SMA: medium-term trend and dynamic support or resistance; lags price.",
		warmup: 50,
		calc:   func(c []dataflows.Candle) []float64 { return talib.Sma(dataflows.Closes(c), 50) },
	},
	"close_200_sma": {
		desc:   "200 SMA: long-term trend benchmark used for golden and death crosses.",
		warmup: 200,
		calc:   func(c []dataflows.Candle) []float64 { return talib.Sma(dataflows.Closes(c), 200) },
	},
	"rsi": {
		desc:   "RSI(14): momentum oscillator; above 70 is overbought, below 30 oversold.",
		warmup: 15,
		calc:   func(c []dataflows.Candle) []float64 { return talib.Rsi(dataflows.Closes(c), 14) },
	},
	"macd": {
		desc:   "MACD(12,26): difference of fast and slow EMAs; watch crossovers and divergence.",
		warmup: 34,
		calc: func(c []dataflows.Candle) []float64 {
			m, _, _ := talib.Macd(dataflows.Closes(c), 12, 26, 9)
			return m
		},
	},
	"macds": {
		desc:   "MACD signal line: 9-period EMA of MACD; crossovers with MACD trigger entries.",
		warmup: 34,
		calc: func(c []dataflows.Candle) []float64 {
			_, s, _ := talib.Macd(dataflows.Closes(c), 12, 26, 9)
			return s
		},
	},
	"macdh": {
		desc:   "MACD histogram: gap between MACD and its signal; shows momentum strength.",
		warmup: 34,
		calc: func(c []dataflows.Candle) []float64 {
			_, _, h := talib.Macd(dataflows.Closes(c), 12, 26, 9)
			return h
		},
	},
	"boll": {
		desc:   "Bollinger middle band: 20 SMA that anchors the bands.",
		warmup: 20,
		calc: func(c []dataflows.Candle) []float64 {
			_, mid, _ := talib.BBands(dataflows.Closes(c), 20, 2.0, 2.0, talib.SMA)
			return mid
		},
	},
	"boll_ub": {
		desc:   "Bollinger upper band: two standard deviations above the middle; breakout and overbought zone.",
		warmup: 20,
		calc: func(c []dataflows.Candle) []float64 {
			ub, _, _ := talib.BBands(dataflows.Closes(c), 20, 2.0, 2.0, talib.SMA)
			return ub
		},
	},
	"boll_lb": {
		desc:   "Bollinger lower band: two standard deviations below the middle; oversold zone.",
		warmup: 20,
		calc: func(c []dataflows.Candle) []float64 {
			_, _, lb := talib.BBands(dataflows.Closes(c), 20, 2.0, 2.0, talib.SMA)
			return lb
		},
	},
	"atr": {
		desc:   "ATR(14): average true range, a volatility gauge for stops and sizing.",
		warmup: 15,
		calc: func(c []dataflows.Candle) []float64 {
			return talib.Atr(dataflows.Highs(c), dataflows.Lows(c), dataflows.Closes(c), 14)
		},
	},
	"mfi": {
		desc:   "MFI(14): volume-weighted RSI; above 80 overbought, below 20 oversold.",
		warmup: 15,
		calc: func(c []dataflows.Candle) []float64 {
			vol := make([]float64, len(c))
			for i, x := range c {
				vol[i] = float64(x.Volume)
			}
			return talib.Mfi(dataflows.Highs(c), dataflows.Lows(c), dataflows.Closes(c), vol, 14)
		},
	},
}

// IndicatorNames lists the supported indicators in sorted order.
func IndicatorNames() []string {
	names := make([]string, 0, len(indicators))
	for k := range indicators {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func newIndicatorsTool(b binding, src CandleSource) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: "get_indicators",
			Desc: "Get a technical indicator for a stock over a window ending on the analysis date. Supported: " +
				strings.Join(IndicatorNames(), ", "),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"symbol": {
					Type:     "string",
					Desc:     "Ticker symbol of the company",
					Required: true,
				},
				"indicator": {
					Type:     "string",
					Desc:     "Indicator name",
					Required: true,
				},
				"look_back_days": {
					Type: "integer",
					Desc: "How many trading days of values to report (default 30)",
				},
			}),
		},
		func(ctx context.Context, in IndicatorInput) (string, error) {
			name := strings.ToLower(strings.TrimSpace(in.Indicator))
			spec, ok := indicators[name]
			if !ok {
				return "", apperrors.Wrapf(apperrors.KindTool, "get_indicators",
					"indicator %q is not supported, choose from: %s", in.Indicator, strings.Join(IndicatorNames(), ", "))
			}
			window := lookBack(in.LookBackDays)
			info := b.resolve(in.Symbol)

			candles, err := src.Candles(ctx, info, b.tradeDate, window+spec.warmup)
			if err != nil {
				return "", err
			}
			if len(candles) < spec.warmup {
				return fmt.Sprintf("Insufficient data for %s on %s: need %d bars, have %d.",
					name, info.Ticker, spec.warmup, len(candles)), nil
			}
			return formatIndicator(name, spec, candles, window), nil
		},
	)
}

func formatIndicator(name string, spec indicatorSpec, candles []dataflows.Candle, window int) string {
	values := spec.calc(candles)
	first := spec.warmup - 1
	if start := len(candles) - window; start > first {
		first = start
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s from %s to %s\n\n",
		name,
		candles[first].Time.Format("2006-01-02"),
		candles[len(candles)-1].Time.Format("2006-01-02"))
	for i := first; i < len(candles) && i < len(values); i++ {
		fmt.Fprintf(&sb, "%s: %.4f\n", candles[i].Time.Format("2006-01-02"), values[i])
	}
	sb.WriteString("\n")
	sb.WriteString(spec.desc)
	return sb.String()
}
