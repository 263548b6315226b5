// Package backends wires every built-in connector implementation into
// a factory.
package backends

import (
	"github.com/platewise/dataconnect/pkg/connector/backends/mongodb"
	"github.com/platewise/dataconnect/pkg/connector/backends/mysql"
	"github.com/platewise/dataconnect/pkg/connector/backends/postgresql"
	"github.com/platewise/dataconnect/pkg/connector/backends/snowflake"
	"github.com/platewise/dataconnect/pkg/connector/registry"
)

// RegisterAll binds every built-in backend to the factory.
func RegisterAll(f *registry.Factory) error {
	if err := postgresql.Register(f); err != nil {
		return err
	}
	if err := mysql.Register(f); err != nil {
		return err
	}
	if err := mongodb.Register(f); err != nil {
		return err
	}
	return snowflake.Register(f)
}

// NewFactory returns a factory with every built-in backend registered.
func NewFactory() *registry.Factory {
	f := registry.NewFactory()
	// Registration on a fresh factory cannot conflict.
	_ = RegisterAll(f)
	return f
}
