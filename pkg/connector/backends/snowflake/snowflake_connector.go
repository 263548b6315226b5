// Package snowflake implements the connector contract for Snowflake
// over database/sql with the gosnowflake driver. Warehouse, role and
// account settings come from the backend-specific extras.
package snowflake

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"strings"
	"sync"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/base"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/registry"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Register binds this backend to the factory.
func Register(f *registry.Factory) error {
	return f.Register(config.ConnectorTypeSnowflake, New)
}

const defaultPreviewLimit = 100

// Connector is the Snowflake implementation of core.Connector.
type Connector struct {
	*base.Connector

	mu sync.Mutex
	db *sql.DB
}

// New constructs an unconnected Snowflake connector.
func New(cfg *config.ConnectorConfig) (core.Connector, error) {
	if cfg.Type != config.ConnectorTypeSnowflake {
		return nil, errors.Newf(errors.ErrorTypeConfiguration,
			"snowflake connector got config of type %q", cfg.Type)
	}
	if cfg.Extra("account", "") == "" {
		return nil, errors.New(errors.ErrorTypeConfiguration,
			`snowflake requires the "account" extra`)
	}
	return &Connector{Connector: base.New(cfg)}, nil
}

// dsn builds the gosnowflake DSN from the framework config.
func (c *Connector) dsn() (string, error) {
	cfg := c.Config()

	sfCfg := &sf.Config{
		Account:      cfg.Extra("account", ""),
		User:         cfg.Username,
		Password:     cfg.Password,
		Database:     cfg.Database,
		Schema:       cfg.Extra("schema", "PUBLIC"),
		Warehouse:    cfg.Extra("warehouse", ""),
		Role:         cfg.Extra("role", ""),
		LoginTimeout: cfg.ConnectionTimeout,
	}
	if cfg.Host != "" {
		sfCfg.Host = cfg.Host
	}
	if cfg.Port != 0 {
		sfCfg.Port = cfg.Port
	}

	dsn, err := sf.DSN(sfCfg)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfiguration, "invalid connection parameters")
	}
	return dsn, nil
}

// Connect opens the database/sql pool and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return nil
	}

	dsn, err := c.dsn()
	if err != nil {
		return err
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return c.mapError(err, errors.ErrorTypeConfiguration, "invalid connection parameters")
	}

	cfg := c.Config()
	db.SetMaxOpenConns(cfg.MaxConnections())
	db.SetMaxIdleConns(cfg.PoolSize)
	db.SetConnMaxIdleTime(cfg.PoolTimeout)

	connectCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return c.mapError(err, errors.ErrorTypeConnection, "failed to reach server")
	}

	c.db = db
	c.MarkConnected()
	c.Logger().Info("connected",
		zap.String("account", cfg.Extra("account", "")),
		zap.String("database", cfg.Database),
		zap.String("warehouse", cfg.Extra("warehouse", "")))

	return nil
}

// Disconnect closes the pool. Idempotent.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.db != nil {
		err = c.db.Close()
		c.db = nil
	}
	c.MarkDisconnected()
	if err != nil {
		return c.Translate(err, errors.ErrorTypeConnection, "error closing connection pool")
	}
	return nil
}

// TestConnection pings the warehouse and reports latency and version.
func (c *Connector) TestConnection(ctx context.Context) (*core.TestResult, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	probeCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	start := time.Now()
	var version string
	if err := c.db.QueryRowContext(probeCtx, "SELECT CURRENT_VERSION()").Scan(&version); err != nil {
		return &core.TestResult{
			Success:   false,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
			Message:   err.Error(),
		}, nil
	}
	c.Touch()

	return &core.TestResult{
		Success:       true,
		LatencyMs:     float64(time.Since(start).Microseconds()) / 1000,
		ServerVersion: version,
	}, nil
}

// HealthStatus probes the pool with a short deadline.
func (c *Connector) HealthStatus(ctx context.Context) *core.HealthStatus {
	status := &core.HealthStatus{
		Connected: c.IsConnected(),
		CheckedAt: time.Now(),
	}
	if !c.IsConnected() {
		status.Status = core.StatusUnhealthy
		status.Err = "not connected"
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := c.db.PingContext(probeCtx); err != nil {
		status.Status = core.StatusUnhealthy
		status.Err = err.Error()
		return status
	}

	status.Healthy = true
	status.Status = core.StatusHealthy
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	return status
}

// ListTables returns schema-qualified tables of the configured
// database, excluding the information schema itself.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema != 'INFORMATION_SCHEMA'
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to scan table row")
		}
		tables = append(tables, schema+"."+name)
	}
	if err := rows.Err(); err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed iterating tables")
	}
	c.Touch()
	return tables, nil
}

// GetColumnInfo returns normalized column metadata for one table.
// Primary keys are not exposed through the information schema, so the
// flag stays false.
func (c *Connector) GetColumnInfo(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	schema, name := splitTable(table, c.Config().Extra("schema", "PUBLIC"))

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, strings.ToUpper(schema), strings.ToUpper(name))
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to query columns")
	}
	defer rows.Close()

	var columns []core.ColumnInfo
	for rows.Next() {
		var colName, dataType, isNullable string
		var colDefault *string
		if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to scan column row")
		}
		columns = append(columns, core.ColumnInfo{
			Name:       colName,
			Type:       mapDataType(dataType),
			NativeType: dataType,
			Nullable:   isNullable == "YES",
			Default:    colDefault,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed iterating columns")
	}

	if len(columns) == 0 {
		return nil, errors.Newf(errors.ErrorTypeSchema, "table %q not found or has no columns", table).
			WithConnector(string(c.Type()), c.ID())
	}
	c.Touch()
	return columns, nil
}

// DiscoverSchema walks all tables and their columns.
func (c *Connector) DiscoverSchema(ctx context.Context) (*core.SchemaInfo, error) {
	tables, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	info := &core.SchemaInfo{
		Database:     c.Config().Database,
		DiscoveredAt: time.Now(),
	}

	for _, table := range tables {
		columns, err := c.GetColumnInfo(ctx, table)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeSchema,
				"failed to describe table %q", table)
		}
		schema, name := splitTable(table, c.Config().Extra("schema", "PUBLIC"))
		info.Tables = append(info.Tables, core.TableInfo{
			Name:    name,
			Schema:  schema,
			Columns: columns,
		})
	}

	return info, nil
}

// ExecuteQuery translates and runs a universal query. Metrics are
// updated exactly once whichever path is taken.
func (c *Connector) ExecuteQuery(ctx context.Context, q *core.UniversalQuery) (*core.QueryResult, error) {
	if err := c.EnsureConnected(); err != nil {
		c.ObserveQuery(time.Now(), err)
		return nil, err
	}

	if q.Type == core.QueryTypeSchema && !q.IsRaw() {
		return c.schemaQueryResult(ctx)
	}

	sqlText, args, err := base.BuildSQL(q, base.DialectSnowflake)
	if err != nil {
		c.ObserveQuery(time.Now(), err)
		return nil, c.Translate(err, errors.ErrorTypeQuery, "invalid query")
	}

	queryCtx, cancel := c.QueryContext(ctx, q)
	defer cancel()

	start := time.Now()
	result, err := c.run(queryCtx, q, sqlText, args)
	c.ObserveQuery(start, err)
	if err != nil {
		mapped := c.mapError(err, errors.ErrorTypeQuery, "query execution failed")
		if e, ok := errors.As(mapped); ok {
			e.WithQuery(sqlText)
		}
		return nil, mapped
	}

	result.ExecutionTime = time.Since(start)
	if q.Limit > 0 && result.RowCount == q.Limit {
		result.NextCursor = strconv.Itoa(q.Offset + q.Limit)
	}
	return result, nil
}

func (c *Connector) run(ctx context.Context, q *core.UniversalQuery, sqlText string, args []interface{}) (*core.QueryResult, error) {
	if returnsRows(q, sqlText) {
		rows, err := c.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		columns, out, err := base.ScanRows(rows)
		if err != nil {
			return nil, err
		}
		return &core.QueryResult{
			Rows:     out,
			Columns:  columns,
			RowCount: len(out),
		}, nil
	}

	res, err := c.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return &core.QueryResult{RowsAffected: affected}, nil
}

// schemaQueryResult serves SCHEMA-typed queries from the catalog.
func (c *Connector) schemaQueryResult(ctx context.Context) (*core.QueryResult, error) {
	start := time.Now()
	tables, err := c.ListTables(ctx)
	c.ObserveQuery(start, err)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(tables))
	for _, t := range tables {
		rows = append(rows, map[string]interface{}{"table_name": t})
	}
	return &core.QueryResult{
		Rows:          rows,
		Columns:       []string{"table_name"},
		RowCount:      len(rows),
		ExecutionTime: time.Since(start),
	}, nil
}

// PreviewData samples up to limit rows and reports per-column
// completeness over the sample.
func (c *Connector) PreviewData(ctx context.Context, table string, limit int) (*core.PreviewResult, error) {
	if limit <= 0 {
		limit = defaultPreviewLimit
	}

	q := core.NewQuery(core.QueryTypePreview).From(table).WithLimit(limit)
	result, err := c.ExecuteQuery(ctx, &q)
	if err != nil {
		return nil, err
	}

	return &core.PreviewResult{
		QueryResult:  *result,
		SampleSize:   result.RowCount,
		Completeness: core.Completeness(result.Columns, result.Rows),
	}, nil
}

func returnsRows(q *core.UniversalQuery, sqlText string) bool {
	if !q.IsRaw() {
		switch q.Type {
		case core.QueryTypeSelect, core.QueryTypePreview, core.QueryTypeSchema:
			return true
		default:
			return false
		}
	}
	fields := strings.Fields(sqlText)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN":
		return true
	}
	return false
}

func splitTable(table, defaultSchema string) (schema, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return defaultSchema, table
}

// mapError translates driver errors into the shared taxonomy using
// Snowflake error numbers.
func (c *Connector) mapError(err error, fallback errors.ErrorType, message string) error {
	if err == nil {
		return nil
	}

	var sfErr *sf.SnowflakeError
	if stderrors.As(err, &sfErr) {
		errType := fallback
		switch sfErr.Number {
		case 390100, 390101, 390102, 390103: // login failures
			errType = errors.ErrorTypeAuthentication
		case 390114: // session token expired
			errType = errors.ErrorTypeAuthentication
		case 1003: // syntax error
			errType = errors.ErrorTypeQuery
		case 604: // statement cancelled
			errType = errors.ErrorTypeTimeout
		case 90001: // insufficient privileges
			errType = errors.ErrorTypePermission
		}
		return errors.Wrap(err, errType, message).
			WithConnector(string(c.Type()), c.ID()).
			WithDetail("snowflake_errno", sfErr.Number)
	}

	return c.Translate(err, fallback, message)
}

// mapDataType maps a Snowflake type name onto the shared enum.
func mapDataType(native string) core.DataType {
	switch strings.ToUpper(native) {
	case "NUMBER", "DECIMAL", "NUMERIC":
		return core.DataTypeDecimal
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		return core.DataTypeInteger
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return core.DataTypeFloat
	case "VARCHAR", "CHAR", "CHARACTER", "STRING", "TEXT":
		return core.DataTypeString
	case "BOOLEAN":
		return core.DataTypeBoolean
	case "DATE":
		return core.DataTypeDate
	case "TIME":
		return core.DataTypeTime
	case "DATETIME", "TIMESTAMP", "TIMESTAMP_LTZ", "TIMESTAMP_NTZ", "TIMESTAMP_TZ":
		return core.DataTypeDateTime
	case "VARIANT", "OBJECT":
		return core.DataTypeJSON
	case "ARRAY":
		return core.DataTypeArray
	case "BINARY", "VARBINARY":
		return core.DataTypeBinary
	default:
		return core.DataTypeUnknown
	}
}
