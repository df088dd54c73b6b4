package market

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheOpTimeout = 500 * time.Millisecond

// SeriesCache caches candle windows in Redis so repeated analysis loops
// do not hammer the venue. Cache errors degrade to a miss, never a failure.
type SeriesCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSeriesCache connects to Redis and verifies the connection
func NewSeriesCache(addr, password string, db int, ttl time.Duration) (*SeriesCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &SeriesCache{client: client, ttl: ttl}, nil
}

func seriesKey(symbol, timeframe string, limit int) string {
	return fmt.Sprintf("alphaweex:ohlcv:%s:%s:%d", symbol, timeframe, limit)
}

// Get returns a cached series, or (nil, false) on a miss or any error
func (c *SeriesCache) Get(ctx context.Context, symbol, timeframe string, limit int) (*Series, bool) {
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	key := seriesKey(symbol, timeframe, limit)
	data, err := c.client.Get(opCtx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Series cache read failed")
		return nil, false
	}

	var series Series
	if err := json.Unmarshal(data, &series); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Series cache entry corrupt")
		return nil, false
	}
	series.Source = SourceCache
	return &series, true
}

// Set stores a series with the configured TTL. Write errors are logged
// and swallowed.
func (c *SeriesCache) Set(ctx context.Context, series *Series, limit int) {
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	data, err := json.Marshal(series)
	if err != nil {
		log.Debug().Err(err).Msg("Series cache marshal failed")
		return
	}

	key := seriesKey(series.Symbol, series.Timeframe, limit)
	if err := c.client.Set(opCtx, key, data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Series cache write failed")
	}
}

// Close releases the Redis connection
func (c *SeriesCache) Close() error {
	return c.client.Close()
}
