// Package mysql implements the connector contract for MySQL and
// MySQL-compatible servers over database/sql with the go-sql-driver.
package mysql

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	godriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/base"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/registry"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Register binds this backend to the factory.
func Register(f *registry.Factory) error {
	return f.Register(config.ConnectorTypeMySQL, New)
}

const (
	defaultPort         = 3306
	defaultPreviewLimit = 100
)

// Connector is the MySQL implementation of core.Connector.
type Connector struct {
	*base.Connector

	mu         sync.Mutex
	db         *sql.DB
	tlsProfile string
}

// New constructs an unconnected MySQL connector.
func New(cfg *config.ConnectorConfig) (core.Connector, error) {
	if cfg.Type != config.ConnectorTypeMySQL {
		return nil, errors.Newf(errors.ErrorTypeConfiguration,
			"mysql connector got config of type %q", cfg.Type)
	}
	return &Connector{Connector: base.New(cfg)}, nil
}

// driverConfig builds the go-sql-driver config from the framework
// config, registering a named TLS profile when SSL is enabled.
func (c *Connector) driverConfig() (*godriver.Config, error) {
	cfg := c.Config()

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	dc := godriver.NewConfig()
	dc.User = cfg.Username
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", cfg.Host, port)
	dc.DBName = cfg.Database
	dc.Timeout = cfg.ConnectionTimeout
	dc.ReadTimeout = cfg.QueryTimeout
	dc.WriteTimeout = cfg.QueryTimeout
	dc.ParseTime = true

	if cfg.UseSSL {
		tlsCfg, err := cfg.TLSConfig()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "invalid TLS material")
		}
		profile := "dataconnect-" + c.ID()
		if err := godriver.RegisterTLSConfig(profile, tlsCfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, "failed to register TLS profile")
		}
		c.tlsProfile = profile
		dc.TLSConfig = profile
	}

	return dc, nil
}

// Connect opens the database/sql pool and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return nil
	}

	dc, err := c.driverConfig()
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", dc.FormatDSN())
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
		zap.String("addr", dc.Addr),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxConnections()))

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
	if c.tlsProfile != "" {
		godriver.DeregisterTLSConfig(c.tlsProfile)
		c.tlsProfile = ""
	}
	c.MarkDisconnected()
	if err != nil {
		return c.Translate(err, errors.ErrorTypeConnection, "error closing connection pool")
	}
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
	if err := c.db.QueryRowContext(probeCtx, "SELECT VERSION()").Scan(&version); err != nil {
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

	stats := c.db.Stats()
	status.Healthy = true
	status.Status = core.StatusHealthy
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	status.Details = map[string]interface{}{
		"open_conns": stats.OpenConnections,
		"in_use":     stats.InUse,
		"idle":       stats.Idle,
	}
	return status
}

// ListTables returns base tables of the configured database.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, c.Config().Database)
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to scan table row")
		}
		tables = append(tables, name)
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

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	rows, err := c.db.QueryContext(queryCtx, `
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, c.Config().Database, table)
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to query columns")
	}
	defer rows.Close()

	var columns []core.ColumnInfo
	for rows.Next() {
		var name, dataType, isNullable, columnKey string
		var colDefault *string
		if err := rows.Scan(&name, &dataType, &isNullable, &colDefault, &columnKey); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to scan column row")
		}
		columns = append(columns, core.ColumnInfo{
			Name:       name,
			Type:       mapDataType(dataType),
			NativeType: dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: columnKey == "PRI",
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

// DiscoverSchema walks all tables of the configured database.
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
		info.Tables = append(info.Tables, core.TableInfo{
			Name:    table,
			Schema:  c.Config().Database,
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

	sqlText, args, err := base.BuildSQL(q, base.DialectMySQL)
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

// mapError translates driver errors into the shared taxonomy using
// MySQL error numbers.
func (c *Connector) mapError(err error, fallback errors.ErrorType, message string) error {
	if err == nil {
		return nil
	}

	var myErr *godriver.MySQLError
	if stderrors.As(err, &myErr) {
		errType := fallback
		switch myErr.Number {
		case 1045, 1698: // access denied
			errType = errors.ErrorTypeAuthentication
		case 1044, 1142, 1143: // db/table/column privilege
			errType = errors.ErrorTypePermission
		case 1064, 1054, 1146: // syntax, unknown column, unknown table
			errType = errors.ErrorTypeQuery
		case 1040, 1203: // too many connections
			errType = errors.ErrorTypeRateLimit
		case 3024, 1317: // statement timeout / interrupted
			errType = errors.ErrorTypeTimeout
		case 1062, 1048, 1452: // duplicate key, null violation, fk violation
			errType = errors.ErrorTypeDataValidation
		case 2002, 2003, 2006, 2013: // connection-level failures
			errType = errors.ErrorTypeConnection
		}
		return errors.Wrap(err, errType, message).
			WithConnector(string(c.Type()), c.ID()).
			WithDetail("mysql_errno", int(myErr.Number))
	}

	if stderrors.Is(err, godriver.ErrInvalidConn) || stderrors.Is(err, sql.ErrConnDone) {
		return errors.Wrap(err, errors.ErrorTypeConnection, message).
			WithConnector(string(c.Type()), c.ID())
	}

	return c.Translate(err, fallback, message)
}

// mapDataType maps a MySQL type name onto the shared enum.
func mapDataType(native string) core.DataType {
	switch strings.ToLower(native) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint", "year":
		return core.DataTypeInteger
	case "float", "double":
		return core.DataTypeFloat
	case "decimal", "numeric":
		return core.DataTypeDecimal
	case "bit":
		return core.DataTypeBoolean
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext", "enum", "set":
		return core.DataTypeString
	case "date":
		return core.DataTypeDate
	case "time":
		return core.DataTypeTime
	case "datetime", "timestamp":
		return core.DataTypeDateTime
	case "json":
		return core.DataTypeJSON
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return core.DataTypeBinary
	default:
		return core.DataTypeUnknown
	}
}
