package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWrap(t *testing.T) {
	err := New(ErrorTypeConnection, "connection refused").
		WithConnector("postgresql", "abc-123")

	assert.Equal(t, ErrorTypeConnection, err.Type)
	assert.Equal(t, "postgresql", err.ConnectorType)
	assert.Equal(t, "abc-123", err.ConnectorID)
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := Wrap(err, ErrorTypeQuery, "query aborted")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeQuery, wrapped.Type)
	// Connector identity survives re-wrapping.
	assert.Equal(t, "postgresql", wrapped.ConnectorType)
	assert.Equal(t, "abc-123", wrapped.ConnectorID)
	assert.True(t, errors.Is(wrapped, err))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "ignored"))
}

func TestIsTypeAndRetryable(t *testing.T) {
	timeout := New(ErrorTypeTimeout, "deadline exceeded")
	assert.True(t, IsType(timeout, ErrorTypeTimeout))
	assert.False(t, IsType(timeout, ErrorTypeQuery))
	assert.True(t, IsRetryable(timeout))

	assert.True(t, IsRetryable(New(ErrorTypeConnection, "down")))
	assert.True(t, IsRetryable(New(ErrorTypeRateLimit, "slow down")))
	assert.False(t, IsRetryable(New(ErrorTypeQuery, "syntax error")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))

	// Wrapped foreign errors classify by the outermost taxonomy type.
	wrapped := Wrap(fmt.Errorf("driver said no"), ErrorTypeAuthentication, "login failed")
	assert.True(t, IsType(wrapped, ErrorTypeAuthentication))
	assert.Equal(t, ErrorTypeAuthentication, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestPayload(t *testing.T) {
	err := New(ErrorTypeRateLimit, "too many requests").
		WithConnector("mysql", "id-9").
		WithRetryAfter(30 * time.Second).
		WithDetail("endpoint", "orders")

	p := err.Payload()
	assert.Equal(t, "rate_limit", p.ErrorType)
	assert.Equal(t, "mysql", p.ConnectorType)
	assert.Equal(t, "id-9", p.ConnectorID)
	assert.Equal(t, 30.0, p.RetryAfterSeconds)
	assert.Equal(t, "orders", p.Details["endpoint"])
}

func TestPayloadCarriesQueryText(t *testing.T) {
	err := New(ErrorTypeQuery, "relation does not exist").
		WithQuery("SELECT * FROM missing")

	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "query", decoded["error_type"])
	assert.Equal(t, "SELECT * FROM missing", decoded["query"])
}
