package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlpacaFetchBars(t *testing.T) {
	var gotPath, gotKey, gotSecret, gotTimeframe string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("APCA-API-KEY-ID")
		gotSecret = r.Header.Get("APCA-API-SECRET-KEY")
		gotTimeframe = r.URL.Query().Get("timeframe")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"SPY","bars":[
			{"t":"2024-01-02T14:00:00Z","o":449.0,"h":449.5,"l":448.8,"c":449.1,"v":100000},
			{"t":"2024-01-02T15:00:00Z","o":449.2,"h":450.2,"l":449.0,"c":450.0,"v":120000}
		]}`))
	}))
	defer srv.Close()

	source := NewAlpacaSource(AlpacaConfig{
		APIKey:    "key-id",
		SecretKey: "key-secret",
		Endpoint:  srv.URL,
		Timeout:   2 * time.Second,
	})

	bars, err := source.FetchEquityBars(context.Background(), "SPY", "1h", 2)
	require.NoError(t, err)

	assert.Equal(t, "/stocks/SPY/bars", gotPath)
	assert.Equal(t, "key-id", gotKey)
	assert.Equal(t, "key-secret", gotSecret)
	assert.Equal(t, "1Hour", gotTimeframe)

	require.Len(t, bars, 2)
	assert.Equal(t, 449.1, bars[0].Close)
	assert.Equal(t, 450.0, bars[1].Close)
	assert.Equal(t, 2024, bars[1].Timestamp.Year())
}

func TestAlpacaMissingCredentials(t *testing.T) {
	source := NewAlpacaSource(AlpacaConfig{})
	_, err := source.FetchEquityBars(context.Background(), "SPY", "1h", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials not configured")
}

func TestAlpacaBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	source := NewAlpacaSource(AlpacaConfig{APIKey: "k", SecretKey: "s", Endpoint: srv.URL})
	_, err := source.FetchEquityBars(context.Background(), "SPY", "1h", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestAlpacaEmptyBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"SPY","bars":[]}`))
	}))
	defer srv.Close()

	source := NewAlpacaSource(AlpacaConfig{APIKey: "k", SecretKey: "s", Endpoint: srv.URL})
	_, err := source.FetchEquityBars(context.Background(), "SPY", "1h", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bars")
}

func TestAlpacaTimeframeMapping(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1m", "1Min"},
		{"15m", "15Min"},
		{"1h", "1Hour"},
		{"1d", "1Day"},
		{"7h", "1Hour"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, alpacaTimeframe(tt.in), tt.in)
	}
}
