package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	b, err := New(Config{Embedded: true, Prefix: "test."})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewEmbedded(t *testing.T) {
	b := newTestBus(t)
	assert.True(t, b.nc.IsConnected())
	assert.NotNil(t, b.srv)

	stats := b.Stats()
	assert.Equal(t, true, stats["embedded"])
	assert.Equal(t, true, stats["connected"])
}

func TestDefaultPrefix(t *testing.T) {
	b, err := New(Config{Embedded: true})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "alphaweex.", b.prefix)
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBus(t)

	received := make(chan *Event, 1)
	sub, err := b.Subscribe(EventAnalysis, func(ev *Event) {
		received <- ev
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	payload := map[string]interface{}{"signal": "BUY", "confidence": 0.75}
	err = b.Publish(context.Background(), EventAnalysis, "reasoning_loop", payload)
	require.NoError(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, EventAnalysis, ev.Type)
		assert.Equal(t, "reasoning_loop", ev.Source)
		assert.False(t, ev.Timestamp.IsZero())

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(ev.Payload, &decoded))
		assert.Equal(t, "BUY", decoded["signal"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestSubscribeDoesNotCrossTypes(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	var got []string
	sub, err := b.Subscribe(EventKillSwitch, func(ev *Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, b.Publish(context.Background(), EventAnalysis, "test", nil))
	require.NoError(t, b.Publish(context.Background(), EventKillSwitch, "guardrails", nil))
	require.NoError(t, b.nc.Flush())

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventKillSwitch}, got)
}

func TestSubscribeAll(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	count := 0
	sub, err := b.SubscribeAll(func(ev *Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, EventAnalysis, "test", nil))
	require.NoError(t, b.Publish(ctx, EventPromotion, "test", nil))
	require.NoError(t, b.Publish(ctx, EventAlert, "test", nil))
	require.NoError(t, b.nc.Flush())

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count)
}

func TestPublishCancelledContext(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Publish(ctx, EventStatus, "test", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
