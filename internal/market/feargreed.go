package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// FearGreedSource provides the crowd sentiment index
type FearGreedSource interface {
	FetchFearGreed(ctx context.Context) (*FearGreed, error)
}

// FearGreedClient fetches the Fear & Greed index from alternative.me
type FearGreedClient struct {
	endpoint string
	client   *http.Client
}

// NewFearGreedClient creates a sentiment index client. An empty endpoint
// uses the public API.
func NewFearGreedClient(endpoint string, timeout time.Duration) *FearGreedClient {
	if endpoint == "" {
		endpoint = "https://api.alternative.me/fng/"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &FearGreedClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// fngResponse is the wire format of the index API
type fngResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
}

// FetchFearGreed fetches the latest index reading
func (f *FearGreedClient) FetchFearGreed(ctx context.Context) (*FearGreed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("request build failed: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fear/greed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fear/greed API returned status %d", resp.StatusCode)
	}

	var payload fngResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("fear/greed response decode failed: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("fear/greed response contained no data")
	}

	entry := payload.Data[0]
	value, err := strconv.Atoi(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("fear/greed value %q is not numeric: %w", entry.Value, err)
	}

	return &FearGreed{
		Value:          value,
		Classification: entry.ValueClassification,
		Timestamp:      entry.Timestamp,
		Source:         SourceLive,
	}, nil
}
