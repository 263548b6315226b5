package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// connectorsFile mirrors the YAML layout of a connectors file:
//
//	connectors:
//	  - type: postgresql
//	    name: primary
//	    host: db.internal
//	    ...
type connectorsFile struct {
	Connectors []*ConnectorConfig `mapstructure:"connectors"`
}

// decodeHook parses "30s"-style duration strings in timeout fields.
var decodeHook = viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc(),
))

// newViper builds a viper instance with env override support. Any field
// can be overridden via DATACONNECT_<FIELD>, e.g. DATACONNECT_PASSWORD.
func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("DATACONNECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return v, nil
}

// LoadFile reads a single connector configuration from a YAML file.
func LoadFile(path string) (*ConnectorConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg := &ConnectorConfig{}
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode connector config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connector config in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAll reads a multi-connector file (a top-level "connectors" list).
func LoadAll(path string) ([]*ConnectorConfig, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}

	var file connectorsFile
	if err := v.Unmarshal(&file, decodeHook); err != nil {
		return nil, fmt.Errorf("failed to decode connectors file: %w", err)
	}

	if len(file.Connectors) == 0 {
		return nil, fmt.Errorf("no connectors defined in %s", path)
	}

	seen := make(map[string]struct{}, len(file.Connectors))
	for _, cfg := range file.Connectors {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid connector %q in %s: %w", cfg.Name, path, err)
		}
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("duplicate connector name %q in %s", cfg.Name, path)
		}
		seen[cfg.Name] = struct{}{}
	}

	return file.Connectors, nil
}
