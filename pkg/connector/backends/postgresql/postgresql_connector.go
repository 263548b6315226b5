// Package postgresql implements the connector contract for PostgreSQL
// using pgx. The connector owns a pgxpool.Pool sized from the
// framework config; schema discovery goes through information_schema.
package postgresql

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/base"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/registry"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Register binds this backend to the factory.
func Register(f *registry.Factory) error {
	return f.Register(config.ConnectorTypePostgreSQL, New)
}

const (
	defaultPort         = 5432
	defaultPreviewLimit = 100
)

// Connector is the PostgreSQL implementation of core.Connector.
type Connector struct {
	*base.Connector

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New constructs an unconnected PostgreSQL connector.
func New(cfg *config.ConnectorConfig) (core.Connector, error) {
	if cfg.Type != config.ConnectorTypePostgreSQL {
		return nil, errors.Newf(errors.ErrorTypeConfiguration,
			"postgresql connector got config of type %q", cfg.Type)
	}
	return &Connector{Connector: base.New(cfg)}, nil
}

// connString builds a pgx URL from the framework config.
func (c *Connector) connString() string {
	cfg := c.Config()

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	params := url.Values{}
	params.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectionTimeout.Seconds())))
	if cfg.UseSSL {
		params.Set("sslmode", cfg.Extra("sslmode", "verify-full"))
		if cfg.SSLCertPath != "" {
			params.Set("sslcert", cfg.SSLCertPath)
		}
		if cfg.SSLKeyPath != "" {
			params.Set("sslkey", cfg.SSLKeyPath)
		}
		if cfg.SSLCAPath != "" {
			params.Set("sslrootcert", cfg.SSLCAPath)
		}
	} else {
		params.Set("sslmode", cfg.Extra("sslmode", "disable"))
	}
	u.RawQuery = params.Encode()

	return u.String()
}

// Connect establishes the native pool. Calling it on an already
// connected instance is a no-op.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(c.connString())
	if err != nil {
		return c.Translate(err, errors.ErrorTypeConfiguration, "invalid connection parameters")
	}

	cfg := c.Config()
	poolCfg.MaxConns = int32(cfg.MaxConnections())
	poolCfg.MinConns = int32(cfg.PoolSize / 2)
	poolCfg.MaxConnIdleTime = cfg.PoolTimeout

	connectCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return c.mapError(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return c.mapError(err, errors.ErrorTypeConnection, "failed to reach server")
	}

	c.pool = pool
	c.MarkConnected()
	c.Logger().Info("connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.Int32("max_conns", poolCfg.MaxConns))

	return nil
}

// Disconnect closes the native pool. Idempotent.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	c.MarkDisconnected()
	return nil
}

// TestConnection pings the server and reports latency and version.
func (c *Connector) TestConnection(ctx context.Context) (*core.TestResult, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	probeCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	start := time.Now()
	var version string
	if err := c.pool.QueryRow(probeCtx, "SELECT version()").Scan(&version); err != nil {
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
	if err := c.pool.Ping(probeCtx); err != nil {
		status.Status = core.StatusUnhealthy
		status.Err = err.Error()
		return status
	}

	stat := c.pool.Stat()
	status.Healthy = true
	status.Status = core.StatusHealthy
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	status.Details = map[string]interface{}{
		"total_conns": stat.TotalConns(),
		"idle_conns":  stat.IdleConns(),
	}
	return status
}

// ListTables returns user tables from information_schema.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.pool.Query(queryCtx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
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
func (c *Connector) GetColumnInfo(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	schema, name := splitTable(table)

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.pool.Query(queryCtx, `
		SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage kcu
		             ON tc.constraint_name = kcu.constraint_name
		            AND tc.table_schema = kcu.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema = c.table_schema
		             AND tc.table_name = c.table_name
		             AND kcu.column_name = c.column_name
		       ) AS is_primary
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, name)
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to query columns")
	}
	defer rows.Close()

	var columns []core.ColumnInfo
	for rows.Next() {
		var colName, dataType, isNullable string
		var colDefault *string
		var isPrimary bool
		if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault, &isPrimary); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to scan column row")
		}
		columns = append(columns, core.ColumnInfo{
			Name:       colName,
			Type:       mapDataType(dataType),
			NativeType: dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: isPrimary,
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

// DiscoverSchema walks all user tables and their columns.
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
		schema, name := splitTable(table)
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

	sqlText, args, err := base.BuildSQL(q, base.DialectPostgres)
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
		rows, err := c.pool.Query(ctx, sqlText, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		fields := rows.FieldDescriptions()
		columns := make([]string, len(fields))
		for i, f := range fields {
			columns[i] = string(f.Name)
		}

		var out []map[string]interface{}
		for rows.Next() {
			values, err := rows.Values()
			if err != nil {
				return nil, err
			}
			row := make(map[string]interface{}, len(columns))
			for i, col := range columns {
				row[col] = values[i]
			}
			out = append(out, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		return &core.QueryResult{
			Rows:     out,
			Columns:  columns,
			RowCount: len(out),
		}, nil
	}

	tag, err := c.pool.Exec(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{RowsAffected: tag.RowsAffected()}, nil
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

// returnsRows decides between Query and Exec for a statement.
func returnsRows(q *core.UniversalQuery, sqlText string) bool {
	if !q.IsRaw() {
		switch q.Type {
		case core.QueryTypeSelect, core.QueryTypePreview, core.QueryTypeSchema:
			return true
		default:
			return false
		}
	}
	head := strings.ToUpper(firstWord(sqlText))
	switch head {
	case "SELECT", "WITH", "SHOW", "EXPLAIN", "TABLE", "VALUES":
		return true
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func splitTable(table string) (schema, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "public", table
}

// mapError translates pgx/pgconn errors into the shared taxonomy using
// SQLSTATE classes.
func (c *Connector) mapError(err error, fallback errors.ErrorType, message string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		errType := fallback
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			errType = errors.ErrorTypeAuthentication
		case pgErr.Code == "42501":
			errType = errors.ErrorTypePermission
		case strings.HasPrefix(pgErr.Code, "42") || strings.HasPrefix(pgErr.Code, "22"):
			errType = errors.ErrorTypeQuery
		case pgErr.Code == "57014":
			errType = errors.ErrorTypeTimeout
		case pgErr.Code == "53300":
			errType = errors.ErrorTypeRateLimit
		case strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53") ||
			strings.HasPrefix(pgErr.Code, "57"):
			errType = errors.ErrorTypeConnection
		case strings.HasPrefix(pgErr.Code, "23"):
			errType = errors.ErrorTypeDataValidation
		}
		return errors.Wrap(err, errType, message).
			WithConnector(string(c.Type()), c.ID()).
			WithDetail("sqlstate", pgErr.Code)
	}

	return c.Translate(err, fallback, message)
}

// mapDataType maps a PostgreSQL type name onto the shared enum.
func mapDataType(native string) core.DataType {
	switch strings.ToLower(native) {
	case "smallint", "integer", "bigint", "smallserial", "serial", "bigserial", "int2", "int4", "int8":
		return core.DataTypeInteger
	case "real", "double precision", "float4", "float8":
		return core.DataTypeFloat
	case "numeric", "decimal", "money":
		return core.DataTypeDecimal
	case "boolean", "bool":
		return core.DataTypeBoolean
	case "character varying", "varchar", "character", "char", "text", "citext", "name":
		return core.DataTypeString
	case "date":
		return core.DataTypeDate
	case "time", "time without time zone", "time with time zone":
		return core.DataTypeTime
	case "timestamp", "timestamp without time zone", "timestamp with time zone", "timestamptz":
		return core.DataTypeDateTime
	case "json", "jsonb":
		return core.DataTypeJSON
	case "uuid":
		return core.DataTypeUUID
	case "bytea":
		return core.DataTypeBinary
	case "array":
		return core.DataTypeArray
	default:
		if strings.HasPrefix(native, "_") {
			return core.DataTypeArray
		}
		return core.DataTypeUnknown
	}
}
