package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/dataconnect/pkg/config"
)

func TestNewFactoryRegistersAllBackends(t *testing.T) {
	f := NewFactory()

	assert.Equal(t, []config.ConnectorType{
		config.ConnectorTypeMongoDB,
		config.ConnectorTypeMySQL,
		config.ConnectorTypePostgreSQL,
		config.ConnectorTypeSnowflake,
	}, f.Supported())
}

func TestFactoryBuildsUnconnectedInstances(t *testing.T) {
	f := NewFactory()

	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "pg",
		config.WithEndpoint("db.internal", 5432, "analytics"))
	require.NoError(t, err)

	conn, err := f.Create(cfg)
	require.NoError(t, err)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, config.ConnectorTypePostgreSQL, conn.Type())
}
