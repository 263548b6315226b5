// Package dataconnect provides a universal data connector framework:
// one contract for connecting to heterogeneous data backends, with
// connection pooling, background health monitoring and a
// backend-agnostic query and schema model.
//
// Built-in backends cover PostgreSQL, MySQL, MongoDB and Snowflake.
// Every connector translates the shared query model into its native
// dialect, normalizes native column types onto one enum, and maps
// driver errors into a single taxonomy tagged with connector identity.
//
// # Architecture
//
// The framework is layered:
//
//  1. core defines the Connector contract and the UniversalQuery,
//     QueryResult and SchemaInfo model.
//
//  2. base carries the scaffold every backend embeds: instance
//     identity, lifecycle flags, per-query metrics, deadline handling
//     and error translation.
//
//  3. backends/* implement the contract per technology.
//
//  4. registry tracks named instances and runs one health monitor per
//     registration, optionally reconnecting dropped connections.
//
//  5. pool bounds live connections per backend type with LRU eviction
//     and idle cleanup.
//
// # Quick Start
//
// Create, connect and query a PostgreSQL backend:
//
//	import (
//	    "context"
//
//	    "github.com/platewise/dataconnect/pkg/config"
//	    "github.com/platewise/dataconnect/pkg/connector/backends"
//	    "github.com/platewise/dataconnect/pkg/connector/core"
//	)
//
//	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "primary",
//	    config.WithEndpoint("localhost", 5432, "sales"),
//	    config.WithCredentials("app", "secret"))
//	if err != nil {
//	    return err
//	}
//
//	conn, err := backends.NewFactory().Create(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := conn.Connect(context.Background()); err != nil {
//	    return err
//	}
//	defer conn.Disconnect(context.Background())
//
//	q := core.NewQuery(core.QueryTypeSelect).
//	    From("orders").
//	    Where("status", core.OpEqual, "open").
//	    WithLimit(100)
//	result, err := conn.ExecuteQuery(context.Background(), &q)
//
// The same UniversalQuery runs unchanged against MySQL, MongoDB or
// Snowflake connectors.
package dataconnect
