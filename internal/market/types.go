package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Data source markers carried in every fetch result
const (
	SourceLive     = "live"
	SourceFallback = "fallback"
	SourceCache    = "cache"
	SourceStatic   = "static"
)

// Discovery modes
const (
	ModeLive = "LIVE"
	ModeMock = "MOCK"
)

// Candle represents OHLCV data for a time period
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Series is an ordered candle window with its provenance
type Series struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
	Source    string   `json:"source"`
}

// Last returns the most recent candle, or false when the series is empty
func (s *Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Closes returns the close prices in order
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// AssetBalance is a single asset's free and locked amounts
type AssetBalance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// AccountBalance holds per-asset balances with provenance
type AccountBalance struct {
	Assets map[string]AssetBalance `json:"assets"`
	Source string                  `json:"source"`
}

// EquityBar is a single bar of an external equities ticker
type EquityBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// EquitySeries holds bars for one ticker with provenance
type EquitySeries struct {
	Ticker string      `json:"ticker"`
	Bars   []EquityBar `json:"bars"`
	Source string      `json:"source"`
}

// FearGreed is the crowd sentiment index reading
type FearGreed struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	Timestamp      string `json:"timestamp"`
	Source         string `json:"source"`
}

// Headlines is a list of recent news headlines with provenance
type Headlines struct {
	Items  []string `json:"items"`
	Source string   `json:"source"`
}

// Discovery describes what the venue exposes
type Discovery struct {
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
	Mode       string   `json:"mode"`
}

// Feed is the market data boundary every loop consumes
type Feed interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*Series, error)
	FetchBalance(ctx context.Context) (*AccountBalance, error)
	FetchEquityBars(ctx context.Context, ticker, timeframe string, limit int) (*EquitySeries, error)
	FetchFearGreed(ctx context.Context) (*FearGreed, error)
	FetchHeadlines(ctx context.Context, n int) (*Headlines, error)
}

// ParseTimeframe converts a timeframe label like "15m" or "4h" to a duration
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	unit := tf[len(tf)-1]
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe: %q", tf)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid timeframe unit: %q", tf)
	}
}

// venueSymbol converts "BTC/USDT" to the exchange's "BTCUSDT" form
func venueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
