package snowflake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

func newTestConnector(t *testing.T) *Connector {
	t.Helper()
	cfg, err := config.NewConnectorConfig(config.ConnectorTypeSnowflake, "sf-test",
		config.WithEndpoint("", 0, "ANALYTICS"),
		config.WithCredentials("svc", "secret"),
		config.WithExtra("account", "myorg-myaccount"),
		config.WithExtra("warehouse", "COMPUTE_WH"),
		config.WithExtra("role", "ANALYST"))
	require.NoError(t, err)

	c, err := New(cfg)
	require.NoError(t, err)
	return c.(*Connector)
}

func TestNewRequiresAccount(t *testing.T) {
	cfg, err := config.NewConnectorConfig(config.ConnectorTypeSnowflake, "no-account")
	require.NoError(t, err)

	_, err = New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestDSN(t *testing.T) {
	c := newTestConnector(t)

	dsn, err := c.dsn()
	require.NoError(t, err)
	assert.Contains(t, dsn, "myorg-myaccount")
	assert.Contains(t, dsn, "warehouse=COMPUTE_WH")
	assert.Contains(t, dsn, "role=ANALYST")
	assert.Contains(t, dsn, "ANALYTICS")
}

func TestDisconnectedOperationsFailFast(t *testing.T) {
	c := newTestConnector(t)
	ctx := context.Background()

	q := core.NewQuery(core.QueryTypeSelect).From("ORDERS")
	_, err := c.ExecuteQuery(ctx, &q)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)

	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Disconnect(ctx))
}

func TestSplitTable(t *testing.T) {
	schema, name := splitTable("SALES.ORDERS", "PUBLIC")
	assert.Equal(t, "SALES", schema)
	assert.Equal(t, "ORDERS", name)

	schema, name = splitTable("ORDERS", "PUBLIC")
	assert.Equal(t, "PUBLIC", schema)
	assert.Equal(t, "ORDERS", name)
}

func TestMapDataType(t *testing.T) {
	assert.Equal(t, core.DataTypeDecimal, mapDataType("NUMBER"))
	assert.Equal(t, core.DataTypeInteger, mapDataType("BIGINT"))
	assert.Equal(t, core.DataTypeFloat, mapDataType("DOUBLE"))
	assert.Equal(t, core.DataTypeString, mapDataType("VARCHAR"))
	assert.Equal(t, core.DataTypeDateTime, mapDataType("TIMESTAMP_NTZ"))
	assert.Equal(t, core.DataTypeJSON, mapDataType("VARIANT"))
	assert.Equal(t, core.DataTypeArray, mapDataType("ARRAY"))
	assert.Equal(t, core.DataTypeUnknown, mapDataType("GEOGRAPHY"))
}

func TestReturnsRows(t *testing.T) {
	sel := core.NewQuery(core.QueryTypeSelect).From("T")
	assert.True(t, returnsRows(&sel, ""))

	del := core.NewQuery(core.QueryTypeDelete).From("T")
	assert.False(t, returnsRows(&del, ""))

	raw := core.NewRawQuery("SHOW TABLES")
	assert.True(t, returnsRows(&raw, raw.RawQuery))
}
