package market

import (
	"context"
	"time"
)

// baselines seeds the synthetic price generator per symbol
var baselines = map[string]float64{
	"BTC/USDT": 95000.0,
	"ETH/USDT": 3500.0,
	"SOL/USDT": 180.0,
}

// SetBaseline overrides the synthetic anchor price for a symbol. Call
// it during startup, before any feed is serving.
func SetBaseline(symbol string, price float64) {
	if price <= 0 {
		return
	}
	baselines[symbol] = price
}

// fallbackEquityCloses holds the two-bar close pairs served when the
// equities API is unreachable.
var fallbackEquityCloses = map[string][2]float64{
	"SPY": {449.1, 450.0},
	"QQQ": {378.86, 380.0},
}

// SyntheticFeed generates deterministic market data offline. It backs
// mock mode and the fallback path when live sources are unreachable.
type SyntheticFeed struct {
	now func() time.Time
}

// NewSyntheticFeed creates an offline data generator
func NewSyntheticFeed() *SyntheticFeed {
	return &SyntheticFeed{now: time.Now}
}

// FetchOHLCV generates a gently trending candle window ending now
func (s *SyntheticFeed) FetchOHLCV(_ context.Context, symbol, timeframe string, limit int) (*Series, error) {
	if limit <= 0 {
		limit = 100
	}
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		step = 15 * time.Minute
	}

	base, ok := baselines[symbol]
	if !ok {
		base = 100.0
	}

	end := s.now().Truncate(step)
	candles := make([]Candle, 0, limit)
	for i := 0; i < limit; i++ {
		open := base + float64(i)*10
		candles = append(candles, Candle{
			Timestamp: end.Add(-time.Duration(limit-1-i) * step),
			Open:      open,
			High:      open + 50,
			Low:       open - 30,
			Close:     open + 20,
			Volume:    1000 + float64(i)*5,
		})
	}

	return &Series{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   candles,
		Source:    SourceFallback,
	}, nil
}

// FetchBalance returns the paper-trading starting balance
func (s *SyntheticFeed) FetchBalance(_ context.Context) (*AccountBalance, error) {
	return &AccountBalance{
		Assets: map[string]AssetBalance{
			"USDT": {Free: 1000.0},
			"BTC":  {Free: 0.05},
		},
		Source: SourceFallback,
	}, nil
}

// FetchEquityBars returns the static two-bar fallback for macro tickers
func (s *SyntheticFeed) FetchEquityBars(_ context.Context, ticker, timeframe string, limit int) (*EquitySeries, error) {
	closes, ok := fallbackEquityCloses[ticker]
	if !ok {
		closes = [2]float64{99.8, 100.0}
	}
	if limit < 2 {
		limit = 2
	}

	step, err := ParseTimeframe(timeframe)
	if err != nil {
		step = time.Hour
	}
	end := s.now().Truncate(step)

	bars := []EquityBar{
		{Timestamp: end.Add(-step), Open: closes[0], High: closes[0], Low: closes[0], Close: closes[0], Volume: 0},
		{Timestamp: end, Open: closes[1], High: closes[1], Low: closes[1], Close: closes[1], Volume: 0},
	}
	return &EquitySeries{Ticker: ticker, Bars: bars, Source: SourceFallback}, nil
}

// FetchFearGreed returns a neutral index reading
func (s *SyntheticFeed) FetchFearGreed(_ context.Context) (*FearGreed, error) {
	return &FearGreed{
		Value:          50,
		Classification: "Neutral",
		Timestamp:      s.now().UTC().Format(time.RFC3339),
		Source:         SourceFallback,
	}, nil
}

// FetchHeadlines returns canned headlines marked as fallback data
func (s *SyntheticFeed) FetchHeadlines(_ context.Context, n int) (*Headlines, error) {
	items := cannedHeadlines
	if n > 0 && n < len(items) {
		items = items[:n]
	}
	out := make([]string, len(items))
	copy(out, items)
	return &Headlines{Items: out, Source: SourceFallback}, nil
}

// Discover returns the default mock trading universe
func (s *SyntheticFeed) Discover(_ context.Context) (*Discovery, error) {
	return &Discovery{
		Symbols:    []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
		Timeframes: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
		Mode:       ModeMock,
	}, nil
}
