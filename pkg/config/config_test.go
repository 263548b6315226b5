package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConnectorConfigDefaults(t *testing.T) {
	cfg, err := NewConnectorConfig(ConnectorTypePostgreSQL, "primary",
		WithEndpoint("db.internal", 5432, "sales"),
		WithCredentials("app", "secret"))
	require.NoError(t, err)

	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMaxOverflow, cfg.MaxOverflow)
	assert.Equal(t, DefaultConnectionTimeout, cfg.ConnectionTimeout)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout)
	assert.Equal(t, AuthTypeBasic, cfg.AuthType)
	assert.Equal(t, 15, cfg.MaxConnections())
}

func TestNewConnectorConfigRejectsInvalid(t *testing.T) {
	_, err := NewConnectorConfig(ConnectorType("oracle"), "legacy")
	assert.Error(t, err)

	_, err = NewConnectorConfig(ConnectorTypeMySQL, "")
	assert.Error(t, err)

	_, err = NewConnectorConfig(ConnectorTypeMySQL, "bad-auth",
		WithAuthType(AuthType("kerberos")))
	assert.Error(t, err)

	_, err = NewConnectorConfig(ConnectorTypeMySQL, "bad-port",
		WithEndpoint("h", 70000, "db"))
	assert.Error(t, err)

	// Certificate auth demands cert material.
	_, err = NewConnectorConfig(ConnectorTypePostgreSQL, "cert-auth",
		WithAuthType(AuthTypeCertificate))
	assert.Error(t, err)
}

func TestValidateFillsZeroDefaults(t *testing.T) {
	cfg := &ConnectorConfig{Type: ConnectorTypeMongoDB, Name: "docs"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultPoolTimeout, cfg.PoolTimeout)
	assert.Equal(t, AuthTypeBasic, cfg.AuthType)
}

func TestExtra(t *testing.T) {
	cfg, err := NewConnectorConfig(ConnectorTypeSnowflake, "wh",
		WithExtra("warehouse", "ANALYTICS"))
	require.NoError(t, err)

	assert.Equal(t, "ANALYTICS", cfg.Extra("warehouse", "DEFAULT"))
	assert.Equal(t, "PUBLIC", cfg.Extra("schema", "PUBLIC"))
}

func TestTLSConfigDisabled(t *testing.T) {
	cfg, err := NewConnectorConfig(ConnectorTypePostgreSQL, "plain")
	require.NoError(t, err)

	tlsCfg, err := cfg.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connector.yaml")
	content := []byte(`
type: postgresql
name: primary
host: db.internal
port: 5432
database: sales
username: app
password: secret
pool_size: 8
connection_timeout: 10s
query_timeout: 1m
extras:
  schema: reporting
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, ConnectorTypePostgreSQL, cfg.Type)
	assert.Equal(t, "primary", cfg.Name)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, time.Minute, cfg.QueryTimeout)
	assert.Equal(t, "reporting", cfg.Extras["schema"])
}

func TestLoadAllRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connectors.yaml")
	content := []byte(`
connectors:
  - type: postgresql
    name: primary
    host: a
  - type: mysql
    name: primary
    host: b
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := LoadAll(path)
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "connectors.yaml")
	content := []byte(`
connectors:
  - type: postgresql
    name: primary
    host: a
  - type: mongodb
    name: events
    host: b
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfgs, err := LoadAll(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "events", cfgs[1].Name)
}
