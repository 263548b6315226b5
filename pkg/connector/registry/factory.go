// Package registry holds the connector factory and the instance
// registry with its background health monitoring.
package registry

import (
	"sort"
	"sync"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Factory maps connector types to constructors. Instances are
// independent; there is no package-level default.
type Factory struct {
	mu           sync.RWMutex
	constructors map[config.ConnectorType]core.Constructor
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[config.ConnectorType]core.Constructor)}
}

// Register binds a constructor to a connector type. Rebinding an
// already registered type is a conflict.
func (f *Factory) Register(t config.ConnectorType, ctor core.Constructor) error {
	if !t.Valid() {
		return errors.Newf(errors.ErrorTypeConfiguration, "unsupported connector type %q", t)
	}
	if ctor == nil {
		return errors.Newf(errors.ErrorTypeConfiguration, "nil constructor for type %q", t)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.constructors[t]; exists {
		return errors.Newf(errors.ErrorTypeConflict, "connector type %q already registered", t)
	}
	f.constructors[t] = ctor
	return nil
}

// Create validates the config and builds an unconnected instance.
func (f *Factory) Create(cfg *config.ConnectorConfig) (core.Connector, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "nil connector config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "invalid connector config")
	}

	f.mu.RLock()
	ctor, ok := f.constructors[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfiguration,
			"no constructor registered for connector type %q", cfg.Type)
	}

	return ctor(cfg)
}

// Supports reports whether the type has a registered constructor.
func (f *Factory) Supports(t config.ConnectorType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[t]
	return ok
}

// Supported returns the registered types in stable order.
func (f *Factory) Supported() []config.ConnectorType {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]config.ConnectorType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
