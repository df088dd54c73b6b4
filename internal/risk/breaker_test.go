package risk

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBreakerManagerDefaults(t *testing.T) {
	m := NewBreakerManager()

	require.NotNil(t, m.Exchange())
	require.NotNil(t, m.LLM())
	require.NotNil(t, m.External())

	assert.Equal(t, gobreaker.StateClosed, m.Exchange().State())
	assert.Equal(t, gobreaker.StateClosed, m.LLM().State())
	assert.Equal(t, gobreaker.StateClosed, m.External().State())
}

func TestBreakerTripsAfterFailures(t *testing.T) {
	settings := &ServiceSettings{
		MinRequests:     3,
		FailureRatio:    0.6,
		OpenTimeout:     ExchangeOpenTimeout,
		HalfOpenMaxReqs: 1,
		CountInterval:   ExchangeCountInterval,
	}
	m := NewBreakerManagerWithSettings(settings, nil, nil)

	failing := func() (interface{}, error) {
		return nil, errors.New("connection refused")
	}

	for i := 0; i < 3; i++ {
		_, err := m.Exchange().Execute(failing)
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, m.Exchange().State())

	// Requests are rejected while open
	_, err := m.Exchange().Execute(func() (interface{}, error) {
		return "ok", nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	m := NewBreakerManager()

	for i := 0; i < 20; i++ {
		_, err := m.LLM().Execute(func() (interface{}, error) {
			return "ok", nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, m.LLM().State())
}

func TestPassthroughNeverTrips(t *testing.T) {
	m := NewPassthroughBreakerManager()

	for i := 0; i < 50; i++ {
		_, _ = m.Exchange().Execute(func() (interface{}, error) {
			return nil, errors.New("always failing")
		})
	}

	assert.Equal(t, gobreaker.StateClosed, m.Exchange().State())
}
