// Package config defines the connector configuration surface. Every
// backend is configured through the same ConnectorConfig structure;
// backend-specific knobs go into the Extras map. Validation happens at
// construction time so a connector never sees a malformed config.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// ConnectorType identifies a supported backend technology. The set is
// closed: the factory rejects anything not listed here.
type ConnectorType string

const (
	ConnectorTypePostgreSQL ConnectorType = "postgresql"
	ConnectorTypeMySQL      ConnectorType = "mysql"
	ConnectorTypeMongoDB    ConnectorType = "mongodb"
	ConnectorTypeSnowflake  ConnectorType = "snowflake"
)

// ConnectorTypes returns all supported connector types.
func ConnectorTypes() []ConnectorType {
	return []ConnectorType{
		ConnectorTypePostgreSQL,
		ConnectorTypeMySQL,
		ConnectorTypeMongoDB,
		ConnectorTypeSnowflake,
	}
}

// Valid reports whether t is a known connector type.
func (t ConnectorType) Valid() bool {
	switch t {
	case ConnectorTypePostgreSQL, ConnectorTypeMySQL, ConnectorTypeMongoDB, ConnectorTypeSnowflake:
		return true
	}
	return false
}

// AuthType identifies the authentication mode for a connector.
type AuthType string

const (
	AuthTypeNone        AuthType = "none"
	AuthTypeBasic       AuthType = "basic"
	AuthTypeAPIKey      AuthType = "api_key"
	AuthTypeOAuth2      AuthType = "oauth2"
	AuthTypeJWT         AuthType = "jwt"
	AuthTypeCertificate AuthType = "certificate"
)

// Valid reports whether a is a known auth type.
func (a AuthType) Valid() bool {
	switch a {
	case AuthTypeNone, AuthTypeBasic, AuthTypeAPIKey, AuthTypeOAuth2, AuthTypeJWT, AuthTypeCertificate:
		return true
	}
	return false
}

// Defaults applied by NewConnectorConfig and Validate.
const (
	DefaultPoolSize          = 5
	DefaultMaxOverflow       = 10
	DefaultPoolTimeout       = 30 * time.Second
	DefaultConnectionTimeout = 30 * time.Second
	DefaultQueryTimeout      = 300 * time.Second
)

// ConnectorConfig describes one connector instance. Treat it as
// immutable after construction; the framework never mutates it.
type ConnectorConfig struct {
	// Identity
	Type ConnectorType `yaml:"type" json:"type" mapstructure:"type"`
	Name string        `yaml:"name" json:"name" mapstructure:"name"`

	// Endpoint and credentials
	Host     string   `yaml:"host" json:"host" mapstructure:"host"`
	Port     int      `yaml:"port" json:"port" mapstructure:"port"`
	Database string   `yaml:"database" json:"database" mapstructure:"database"`
	Username string   `yaml:"username" json:"username" mapstructure:"username"`
	Password string   `yaml:"password" json:"-" mapstructure:"password"`
	AuthType AuthType `yaml:"auth_type" json:"auth_type" mapstructure:"auth_type"`

	// Native-driver pool sizing
	PoolSize    int           `yaml:"pool_size" json:"pool_size" mapstructure:"pool_size"`
	MaxOverflow int           `yaml:"max_overflow" json:"max_overflow" mapstructure:"max_overflow"`
	PoolTimeout time.Duration `yaml:"pool_timeout" json:"pool_timeout" mapstructure:"pool_timeout"`

	// Deadlines
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout" mapstructure:"connection_timeout"`
	QueryTimeout      time.Duration `yaml:"query_timeout" json:"query_timeout" mapstructure:"query_timeout"`

	// TLS material
	UseSSL      bool   `yaml:"use_ssl" json:"use_ssl" mapstructure:"use_ssl"`
	SSLCertPath string `yaml:"ssl_cert_path" json:"ssl_cert_path" mapstructure:"ssl_cert_path"`
	SSLKeyPath  string `yaml:"ssl_key_path" json:"ssl_key_path" mapstructure:"ssl_key_path"`
	SSLCAPath   string `yaml:"ssl_ca_path" json:"ssl_ca_path" mapstructure:"ssl_ca_path"`

	// Backend-specific settings (schema name, replica set, warehouse, ...)
	Extras map[string]string `yaml:"extras" json:"extras" mapstructure:"extras"`
}

// Option mutates a config during construction.
type Option func(*ConnectorConfig)

// NewConnectorConfig builds a validated config with defaults applied.
func NewConnectorConfig(connectorType ConnectorType, name string, opts ...Option) (*ConnectorConfig, error) {
	cfg := &ConnectorConfig{
		Type:              connectorType,
		Name:              name,
		AuthType:          AuthTypeBasic,
		PoolSize:          DefaultPoolSize,
		MaxOverflow:       DefaultMaxOverflow,
		PoolTimeout:       DefaultPoolTimeout,
		ConnectionTimeout: DefaultConnectionTimeout,
		QueryTimeout:      DefaultQueryTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithEndpoint sets host, port and database.
func WithEndpoint(host string, port int, database string) Option {
	return func(c *ConnectorConfig) {
		c.Host = host
		c.Port = port
		c.Database = database
	}
}

// WithCredentials sets username/password and the basic auth mode.
func WithCredentials(username, password string) Option {
	return func(c *ConnectorConfig) {
		c.Username = username
		c.Password = password
		c.AuthType = AuthTypeBasic
	}
}

// WithAuthType overrides the authentication mode.
func WithAuthType(a AuthType) Option {
	return func(c *ConnectorConfig) { c.AuthType = a }
}

// WithPool sets native pool sizing.
func WithPool(size, maxOverflow int, timeout time.Duration) Option {
	return func(c *ConnectorConfig) {
		c.PoolSize = size
		c.MaxOverflow = maxOverflow
		c.PoolTimeout = timeout
	}
}

// WithTimeouts sets connection and query deadlines.
func WithTimeouts(connection, query time.Duration) Option {
	return func(c *ConnectorConfig) {
		c.ConnectionTimeout = connection
		c.QueryTimeout = query
	}
}

// WithTLS enables TLS using the given certificate material paths.
func WithTLS(certPath, keyPath, caPath string) Option {
	return func(c *ConnectorConfig) {
		c.UseSSL = true
		c.SSLCertPath = certPath
		c.SSLKeyPath = keyPath
		c.SSLCAPath = caPath
	}
}

// WithExtra sets a backend-specific option.
func WithExtra(key, value string) Option {
	return func(c *ConnectorConfig) {
		if c.Extras == nil {
			c.Extras = make(map[string]string)
		}
		c.Extras[key] = value
	}
}

// Validate checks enum membership and numeric sanity, filling defaults
// for zero-valued sizing fields so file-loaded configs behave like
// constructed ones.
func (c *ConnectorConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unsupported connector type %q", c.Type)
	}
	if c.AuthType == "" {
		c.AuthType = AuthTypeBasic
	}
	if !c.AuthType.Valid() {
		return fmt.Errorf("unsupported auth type %q", c.AuthType)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be positive, got %d", c.PoolSize)
	}
	if c.MaxOverflow == 0 {
		c.MaxOverflow = DefaultMaxOverflow
	}
	if c.MaxOverflow < 0 {
		return fmt.Errorf("max_overflow must not be negative, got %d", c.MaxOverflow)
	}
	if c.PoolTimeout == 0 {
		c.PoolTimeout = DefaultPoolTimeout
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.ConnectionTimeout < 0 {
		return fmt.Errorf("connection_timeout must be positive")
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must be positive")
	}

	if c.AuthType == AuthTypeCertificate && (c.SSLCertPath == "" || c.SSLKeyPath == "") {
		return fmt.Errorf("certificate auth requires ssl_cert_path and ssl_key_path")
	}

	return nil
}

// Extra returns a backend-specific option with a fallback default.
func (c *ConnectorConfig) Extra(key, fallback string) string {
	if v, ok := c.Extras[key]; ok && v != "" {
		return v
	}
	return fallback
}

// MaxConnections is the total native connection budget: the base pool
// size plus the allowed overflow.
func (c *ConnectorConfig) MaxConnections() int {
	return c.PoolSize + c.MaxOverflow
}

// TLSConfig builds a *tls.Config from the configured certificate
// material. Returns nil when TLS is disabled.
func (c *ConnectorConfig) TLSConfig() (*tls.Config, error) {
	if !c.UseSSL {
		return nil, nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.SSLCAPath != "" {
		caPEM, err := os.ReadFile(c.SSLCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates parsed from %s", c.SSLCAPath)
		}
		tlsCfg.RootCAs = pool
	}

	if c.SSLCertPath != "" && c.SSLKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.SSLCertPath, c.SSLKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}
