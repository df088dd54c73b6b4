package market

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/AbhayRathi/AlphaWEEX/internal/metrics"
	"github.com/AbhayRathi/AlphaWEEX/internal/risk"
)

// AdapterDeps wires the adapter's sources. Nil sources degrade to the
// synthetic feed, so a fully offline adapter is valid.
type AdapterDeps struct {
	Exchange  ExchangeSource
	Equities  EquitiesSource
	FearGreed FearGreedSource
	Headlines HeadlinesSource
	Cache     *SeriesCache
	Breakers  *risk.BreakerManager

	RequestsPerSecond float64
	Burst             int
}

// Adapter is the single entry point for market data. Every fetch is rate
// limited, breaker guarded, and falls back to synthetic data on failure
// with the source marked on the result.
type Adapter struct {
	exchange  ExchangeSource
	equities  EquitiesSource
	fearGreed FearGreedSource
	headlines HeadlinesSource
	cache     *SeriesCache
	breakers  *risk.BreakerManager
	synthetic *SyntheticFeed
	limiter   *rate.Limiter
}

// NewAdapter creates a market adapter from the given sources
func NewAdapter(deps AdapterDeps) *Adapter {
	if deps.Headlines == nil {
		deps.Headlines = NewStaticHeadlines()
	}
	if deps.Breakers == nil {
		deps.Breakers = risk.NewBreakerManager()
	}
	rps := deps.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := deps.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Adapter{
		exchange:  deps.Exchange,
		equities:  deps.Equities,
		fearGreed: deps.FearGreed,
		headlines: deps.Headlines,
		cache:     deps.Cache,
		breakers:  deps.Breakers,
		synthetic: NewSyntheticFeed(),
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Mode reports whether the adapter serves live or synthetic exchange data
func (a *Adapter) Mode() string {
	if a.exchange != nil {
		return ModeLive
	}
	return ModeMock
}

// FetchOHLCV returns a candle window, from cache when fresh, the venue
// when reachable, and the synthetic generator otherwise.
func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) (*Series, error) {
	if a.cache != nil {
		if series, ok := a.cache.Get(ctx, symbol, timeframe, limit); ok {
			metrics.RecordMarketFetch("ohlcv", SourceCache)
			return series, nil
		}
	}

	if a.exchange == nil {
		metrics.RecordMarketFetch("ohlcv", SourceFallback)
		return a.synthetic.FetchOHLCV(ctx, symbol, timeframe, limit)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breakers.Exchange().Execute(func() (interface{}, error) {
		return a.exchange.FetchOHLCV(ctx, symbol, timeframe, limit)
	})
	a.breakers.Metrics().RecordRequest("exchange", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).
			Msg("OHLCV fetch failed, serving synthetic data")
		metrics.RecordMarketFetch("ohlcv", SourceFallback)
		return a.synthetic.FetchOHLCV(ctx, symbol, timeframe, limit)
	}

	series := &Series{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   result.([]Candle),
		Source:    SourceLive,
	}
	if a.cache != nil {
		a.cache.Set(ctx, series, limit)
	}
	metrics.RecordMarketFetch("ohlcv", SourceLive)
	return series, nil
}

// FetchBalance returns account balances, falling back to the paper
// balance when the venue is unreachable.
func (a *Adapter) FetchBalance(ctx context.Context) (*AccountBalance, error) {
	if a.exchange == nil {
		metrics.RecordMarketFetch("balance", SourceFallback)
		return a.synthetic.FetchBalance(ctx)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breakers.Exchange().Execute(func() (interface{}, error) {
		return a.exchange.FetchBalance(ctx)
	})
	a.breakers.Metrics().RecordRequest("exchange", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Balance fetch failed, serving paper balance")
		metrics.RecordMarketFetch("balance", SourceFallback)
		return a.synthetic.FetchBalance(ctx)
	}

	metrics.RecordMarketFetch("balance", SourceLive)
	return &AccountBalance{Assets: result.(map[string]AssetBalance), Source: SourceLive}, nil
}

// FetchEquityBars returns macro ticker bars, falling back to static
// values when the equities API is unreachable.
func (a *Adapter) FetchEquityBars(ctx context.Context, ticker, timeframe string, limit int) (*EquitySeries, error) {
	if a.equities == nil {
		metrics.RecordMarketFetch("equity_bars", SourceFallback)
		return a.synthetic.FetchEquityBars(ctx, ticker, timeframe, limit)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breakers.External().Execute(func() (interface{}, error) {
		return a.equities.FetchEquityBars(ctx, ticker, timeframe, limit)
	})
	a.breakers.Metrics().RecordRequest("external", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("ticker", ticker).
			Msg("Equity bars fetch failed, serving static fallback")
		metrics.RecordMarketFetch("equity_bars", SourceFallback)
		return a.synthetic.FetchEquityBars(ctx, ticker, timeframe, limit)
	}

	metrics.RecordMarketFetch("equity_bars", SourceLive)
	return &EquitySeries{Ticker: ticker, Bars: result.([]EquityBar), Source: SourceLive}, nil
}

// FetchFearGreed returns the sentiment index, defaulting to neutral when
// the index API is unreachable.
func (a *Adapter) FetchFearGreed(ctx context.Context) (*FearGreed, error) {
	if a.fearGreed == nil {
		metrics.RecordMarketFetch("fear_greed", SourceFallback)
		return a.synthetic.FetchFearGreed(ctx)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breakers.External().Execute(func() (interface{}, error) {
		return a.fearGreed.FetchFearGreed(ctx)
	})
	a.breakers.Metrics().RecordRequest("external", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Fear/greed fetch failed, serving neutral fallback")
		metrics.RecordMarketFetch("fear_greed", SourceFallback)
		return a.synthetic.FetchFearGreed(ctx)
	}

	metrics.RecordMarketFetch("fear_greed", SourceLive)
	return result.(*FearGreed), nil
}

// FetchHeadlines returns recent headlines
func (a *Adapter) FetchHeadlines(ctx context.Context, n int) (*Headlines, error) {
	headlines, err := a.headlines.FetchHeadlines(ctx, n)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.RecordMarketFetch("headlines", SourceFallback)
		return a.synthetic.FetchHeadlines(ctx, n)
	}
	metrics.RecordMarketFetch("headlines", headlines.Source)
	return headlines, nil
}

// Discover enumerates tradable symbols and timeframes, returning the
// default mock universe when the venue is unreachable.
func (a *Adapter) Discover(ctx context.Context) (*Discovery, error) {
	if a.exchange == nil {
		metrics.RecordMarketFetch("discovery", SourceFallback)
		return a.synthetic.Discover(ctx)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := a.breakers.Exchange().Execute(func() (interface{}, error) {
		return a.exchange.Discover(ctx)
	})
	a.breakers.Metrics().RecordRequest("exchange", err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("Symbol discovery failed, using default universe")
		metrics.RecordMarketFetch("discovery", SourceFallback)
		return a.synthetic.Discover(ctx)
	}

	discovery := result.(*Discovery)
	log.Info().Int("symbols", len(discovery.Symbols)).
		Str("sample", symbolList(discovery.Symbols, 5)).
		Str("mode", discovery.Mode).
		Msg("Symbol discovery complete")
	metrics.RecordMarketFetch("discovery", SourceLive)
	return discovery, nil
}

// WaitWindow blocks until the start of the next timeframe boundary or the
// context ends. Analysis loops use it to align with candle closes.
func WaitWindow(ctx context.Context, timeframe string) error {
	step, err := ParseTimeframe(timeframe)
	if err != nil {
		return err
	}
	now := time.Now()
	next := now.Truncate(step).Add(step)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(next.Sub(now)):
		return nil
	}
}
