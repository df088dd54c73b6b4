package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// EquitiesSource provides equity bars for the macro oracle
type EquitiesSource interface {
	FetchEquityBars(ctx context.Context, ticker, timeframe string, limit int) ([]EquityBar, error)
}

// AlpacaConfig contains credentials and endpoint for the equities data API
type AlpacaConfig struct {
	APIKey    string
	SecretKey string
	Endpoint  string
	Timeout   time.Duration
}

// AlpacaSource implements EquitiesSource against the Alpaca market data API
type AlpacaSource struct {
	cfg    AlpacaConfig
	client *http.Client
}

// NewAlpacaSource creates an equities data source
func NewAlpacaSource(cfg AlpacaConfig) *AlpacaSource {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://data.alpaca.markets/v2"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &AlpacaSource{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// alpacaBar is the wire format of a single bar
type alpacaBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// alpacaBarsResponse is the wire format of the bars endpoint
type alpacaBarsResponse struct {
	Bars   []alpacaBar `json:"bars"`
	Symbol string      `json:"symbol"`
}

// FetchEquityBars fetches recent bars for a ticker
func (a *AlpacaSource) FetchEquityBars(ctx context.Context, ticker, timeframe string, limit int) ([]EquityBar, error) {
	if a.cfg.APIKey == "" || a.cfg.SecretKey == "" {
		return nil, fmt.Errorf("equities credentials not configured")
	}

	endpoint := fmt.Sprintf("%s/stocks/%s/bars", a.cfg.Endpoint, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("request build failed: %w", err)
	}

	q := req.URL.Query()
	q.Set("timeframe", alpacaTimeframe(timeframe))
	q.Set("limit", strconv.Itoa(limit))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("APCA-API-KEY-ID", a.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.cfg.SecretKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("equities request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("equities API returned status %d", resp.StatusCode)
	}

	var payload alpacaBarsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("equities response decode failed: %w", err)
	}
	if len(payload.Bars) == 0 {
		return nil, fmt.Errorf("no bars returned for %s", ticker)
	}

	bars := make([]EquityBar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		ts, _ := time.Parse(time.RFC3339, b.Timestamp)
		bars = append(bars, EquityBar{
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}

// alpacaTimeframe maps compact timeframe notation to the API's format
func alpacaTimeframe(timeframe string) string {
	switch timeframe {
	case "1m":
		return "1Min"
	case "5m":
		return "5Min"
	case "15m":
		return "15Min"
	case "1h":
		return "1Hour"
	case "1d":
		return "1Day"
	default:
		return "1Hour"
	}
}
