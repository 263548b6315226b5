package base

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

func testConfig(t *testing.T) *config.ConnectorConfig {
	t.Helper()
	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "unit",
		config.WithTimeouts(time.Second, 2*time.Second))
	require.NoError(t, err)
	return cfg
}

func TestIdentity(t *testing.T) {
	cfg := testConfig(t)

	a := New(cfg)
	b := New(cfg)
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "unit", a.Name())
	assert.Equal(t, config.ConnectorTypePostgreSQL, a.Type())

	c := NewWithID(cfg, "fixed-id")
	assert.Equal(t, "fixed-id", c.ID())
}

func TestLifecycleFlags(t *testing.T) {
	c := New(testConfig(t))

	assert.False(t, c.IsConnected())
	require.Error(t, c.EnsureConnected())
	assert.True(t, errors.IsType(c.EnsureConnected(), errors.ErrorTypeConnection))

	c.MarkConnected()
	assert.True(t, c.IsConnected())
	assert.NoError(t, c.EnsureConnected())

	// Repeated transitions are safe.
	c.MarkConnected()
	c.MarkDisconnected()
	c.MarkDisconnected()
	assert.False(t, c.IsConnected())
}

func TestObserveQueryUpdatesMetricsOnce(t *testing.T) {
	c := New(testConfig(t))

	c.ObserveQuery(time.Now().Add(-10*time.Millisecond), nil)
	c.ObserveQuery(time.Now(), fmt.Errorf("boom"))

	snap := c.Metrics()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.SuccessfulQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)
	assert.False(t, snap.LastQueryAt.IsZero())
}

func TestTouchAdvancesLastUsed(t *testing.T) {
	c := New(testConfig(t))
	before := c.LastUsed()
	time.Sleep(5 * time.Millisecond)
	c.Touch()
	assert.True(t, c.LastUsed().After(before))
}

func TestQueryContextHonorsPerQueryTimeout(t *testing.T) {
	c := New(testConfig(t))

	q := core.NewQuery(core.QueryTypeSelect).From("t").WithTimeout(50 * time.Millisecond)
	ctx, cancel := c.QueryContext(context.Background(), &q)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 30*time.Millisecond)
}

func TestTranslate(t *testing.T) {
	c := New(testConfig(t))

	assert.Nil(t, c.Translate(nil, errors.ErrorTypeQuery, "ignored"))

	translated := c.Translate(fmt.Errorf("driver exploded"), errors.ErrorTypeQuery, "query failed")
	e, ok := errors.As(translated)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeQuery, e.Type)
	assert.Equal(t, string(config.ConnectorTypePostgreSQL), e.ConnectorType)
	assert.Equal(t, c.ID(), e.ConnectorID)

	// Deadline errors become typed timeouts.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	timeoutErr := c.Translate(ctx.Err(), errors.ErrorTypeQuery, "query timed out")
	assert.True(t, errors.IsType(timeoutErr, errors.ErrorTypeTimeout))

	// Already-translated errors pass through with their type intact.
	orig := errors.New(errors.ErrorTypeAuthentication, "denied")
	same := c.Translate(orig, errors.ErrorTypeQuery, "unused")
	assert.True(t, errors.IsType(same, errors.ErrorTypeAuthentication))
}
