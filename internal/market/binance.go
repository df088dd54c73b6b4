package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog/log"
)

// ExchangeSource provides candles, balances, and discovery from a live venue
type ExchangeSource interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	FetchBalance(ctx context.Context) (map[string]AssetBalance, error)
	Discover(ctx context.Context) (*Discovery, error)
}

// BinanceSource implements ExchangeSource against the Binance spot API
type BinanceSource struct {
	client *binance.Client
}

// BinanceConfig contains credentials for the live venue
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
}

// NewBinanceSource creates a live exchange source
func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	if cfg.Testnet {
		binance.UseTestnet = true
		log.Info().Msg("Exchange source initialized (TESTNET mode)")
	}
	return &BinanceSource{
		client: binance.NewClient(cfg.APIKey, cfg.SecretKey),
	}
}

// FetchOHLCV fetches a candle window from the venue
func (b *BinanceSource) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(venueSymbol(symbol)).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("klines fetch failed: %w", err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles = append(candles, Candle{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return candles, nil
}

// FetchBalance fetches the account's asset balances
func (b *BinanceSource) FetchBalance(ctx context.Context) (map[string]AssetBalance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("account fetch failed: %w", err)
	}

	assets := make(map[string]AssetBalance)
	for _, bal := range account.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		assets[bal.Asset] = AssetBalance{Free: free, Locked: locked}
	}
	return assets, nil
}

// Discover enumerates the venue's USDT trading pairs and kline intervals
func (b *BinanceSource) Discover(ctx context.Context) (*Discovery, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info fetch failed: %w", err)
	}

	var symbols []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != "USDT" {
			continue
		}
		symbols = append(symbols, s.BaseAsset+"/"+s.QuoteAsset)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no tradable symbols discovered")
	}

	return &Discovery{
		Symbols:    symbols,
		Timeframes: []string{"1m", "5m", "15m", "30m", "1h", "4h", "12h", "1d"},
		Mode:       ModeLive,
	}, nil
}

// symbolList formats symbols for discovery logging
func symbolList(symbols []string, max int) string {
	if len(symbols) <= max {
		return strings.Join(symbols, ",")
	}
	return strings.Join(symbols[:max], ",") + ",..."
}
