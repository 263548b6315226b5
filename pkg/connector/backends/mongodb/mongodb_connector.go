// Package mongodb implements the connector contract for MongoDB.
// Structured queries become filter documents, raw queries run through
// RunCommand, and schema discovery samples documents per collection.
package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/base"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/connector/registry"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Register binds this backend to the factory.
func Register(f *registry.Factory) error {
	return f.Register(config.ConnectorTypeMongoDB, New)
}

const (
	defaultPort         = 27017
	defaultPreviewLimit = 100

	// schemaSampleSize bounds how many documents per collection are
	// inspected during discovery.
	schemaSampleSize = 100
)

// Connector is the MongoDB implementation of core.Connector.
type Connector struct {
	*base.Connector

	mu     sync.Mutex
	client *mongo.Client
}

// New constructs an unconnected MongoDB connector.
func New(cfg *config.ConnectorConfig) (core.Connector, error) {
	if cfg.Type != config.ConnectorTypeMongoDB {
		return nil, errors.Newf(errors.ErrorTypeConfiguration,
			"mongodb connector got config of type %q", cfg.Type)
	}
	return &Connector{Connector: base.New(cfg)}, nil
}

// uri builds the mongodb connection string from the framework config.
func (c *Connector) uri() string {
	cfg := c.Config()

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	var sb strings.Builder
	sb.WriteString("mongodb://")
	if cfg.Username != "" {
		sb.WriteString(url.QueryEscape(cfg.Username))
		sb.WriteString(":")
		sb.WriteString(url.QueryEscape(cfg.Password))
		sb.WriteString("@")
	}
	fmt.Fprintf(&sb, "%s:%d/%s", cfg.Host, port, cfg.Database)

	params := url.Values{}
	if cfg.UseSSL {
		params.Set("tls", "true")
	}
	if authSource := cfg.Extra("auth_source", ""); authSource != "" {
		params.Set("authSource", authSource)
	}
	if replicaSet := cfg.Extra("replica_set", ""); replicaSet != "" {
		params.Set("replicaSet", replicaSet)
	}
	if len(params) > 0 {
		sb.WriteString("?")
		sb.WriteString(params.Encode())
	}
	return sb.String()
}

// Connect establishes the driver client and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsConnected() {
		return nil
	}

	cfg := c.Config()
	opts := options.Client().
		ApplyURI(c.uri()).
		SetConnectTimeout(cfg.ConnectionTimeout).
		SetMaxPoolSize(uint64(cfg.MaxConnections())).
		SetMaxConnIdleTime(cfg.PoolTimeout)

	if cfg.UseSSL && cfg.SSLCAPath != "" {
		tlsCfg, err := cfg.TLSConfig()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfiguration, "invalid TLS material")
		}
		opts.SetTLSConfig(tlsCfg)
	}

	connectCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return c.mapError(err, errors.ErrorTypeConnection, "failed to create client")
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return c.mapError(err, errors.ErrorTypeConnection, "failed to reach server")
	}

	c.client = client
	c.MarkConnected()
	c.Logger().Info("connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return nil
}

// Disconnect tears down the driver client. Idempotent.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.client != nil {
		err = c.client.Disconnect(ctx)
		c.client = nil
	}
	c.MarkDisconnected()
	if err != nil && !stderrors.Is(err, mongo.ErrClientDisconnected) {
		return c.Translate(err, errors.ErrorTypeConnection, "error closing client")
	}
	return nil
}

// database returns the handle for the configured database.
func (c *Connector) database() *mongo.Database {
	return c.client.Database(c.Config().Database)
}

// TestConnection pings the primary and reports latency and version.
func (c *Connector) TestConnection(ctx context.Context) (*core.TestResult, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	probeCtx, cancel := c.ConnectContext(ctx)
	defer cancel()

	start := time.Now()
	var info struct {
		Version string `bson:"version"`
	}
	err := c.database().RunCommand(probeCtx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info)
	if err != nil {
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
		ServerVersion: info.Version,
	}, nil
}

// HealthStatus pings the primary with a short deadline.
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
	if err := c.client.Ping(probeCtx, readpref.Primary()); err != nil {
		status.Status = core.StatusUnhealthy
		status.Err = err.Error()
		return status
	}

	status.Healthy = true
	status.Status = core.StatusHealthy
	status.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	return status
}

// ListTables returns the collection names of the configured database.
func (c *Connector) ListTables(ctx context.Context) ([]string, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	names, err := c.database().ListCollectionNames(queryCtx, bson.D{})
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to list collections")
	}
	sort.Strings(names)
	c.Touch()
	return names, nil
}

// GetColumnInfo infers per-field metadata by sampling documents.
// Document stores have no declared schema, so everything is treated
// as nullable and _id as the key field.
func (c *Connector) GetColumnInfo(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	if err := c.EnsureConnected(); err != nil {
		return nil, err
	}

	queryCtx, cancel := c.QueryContext(ctx, nil)
	defer cancel()

	cursor, err := c.database().Collection(table).Find(queryCtx, bson.D{},
		options.Find().SetLimit(schemaSampleSize))
	if err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to sample collection")
	}
	defer cursor.Close(queryCtx)

	fieldTypes := map[string]core.DataType{}
	var order []string
	sampled := 0
	for cursor.Next(queryCtx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, c.mapError(err, errors.ErrorTypeSchema, "failed to decode sample document")
		}
		sampled++
		for _, el := range doc {
			inferred := inferDataType(el.Value)
			seen, ok := fieldTypes[el.Key]
			switch {
			case !ok:
				fieldTypes[el.Key] = inferred
				order = append(order, el.Key)
			case seen != inferred && inferred != core.DataTypeUnknown:
				// Mixed types across documents collapse to STRING.
				if seen != core.DataTypeUnknown {
					fieldTypes[el.Key] = core.DataTypeString
				} else {
					fieldTypes[el.Key] = inferred
				}
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, c.mapError(err, errors.ErrorTypeSchema, "failed iterating samples")
	}
	if sampled == 0 {
		return nil, errors.Newf(errors.ErrorTypeSchema,
			"collection %q is empty or does not exist", table).
			WithConnector(string(c.Type()), c.ID())
	}

	columns := make([]core.ColumnInfo, 0, len(order))
	for _, name := range order {
		columns = append(columns, core.ColumnInfo{
			Name:       name,
			Type:       fieldTypes[name],
			NativeType: "bson",
			Nullable:   name != "_id",
			PrimaryKey: name == "_id",
		})
	}
	c.Touch()
	return columns, nil
}

// DiscoverSchema samples every collection in the database.
func (c *Connector) DiscoverSchema(ctx context.Context) (*core.SchemaInfo, error) {
	collections, err := c.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	info := &core.SchemaInfo{
		Database:     c.Config().Database,
		DiscoveredAt: time.Now(),
	}

	for _, coll := range collections {
		columns, err := c.GetColumnInfo(ctx, coll)
		if err != nil {
			// Empty collections still appear in the schema, fieldless.
			if errors.IsType(err, errors.ErrorTypeSchema) {
				info.Tables = append(info.Tables, core.TableInfo{
					Name:   coll,
					Schema: c.Config().Database,
				})
				continue
			}
			return nil, err
		}
		info.Tables = append(info.Tables, core.TableInfo{
			Name:    coll,
			Schema:  c.Config().Database,
			Columns: columns,
		})
	}

	return info, nil
}

// ExecuteQuery runs a universal query against the configured database.
// Metrics are updated exactly once whichever path is taken.
func (c *Connector) ExecuteQuery(ctx context.Context, q *core.UniversalQuery) (*core.QueryResult, error) {
	if err := c.EnsureConnected(); err != nil {
		c.ObserveQuery(time.Now(), err)
		return nil, err
	}

	if q.Type == core.QueryTypeSchema && !q.IsRaw() {
		return c.schemaQueryResult(ctx)
	}

	queryCtx, cancel := c.QueryContext(ctx, q)
	defer cancel()

	start := time.Now()
	result, err := c.run(queryCtx, q)
	c.ObserveQuery(start, err)
	if err != nil {
		mapped := c.mapError(err, errors.ErrorTypeQuery, "query execution failed")
		if e, ok := errors.As(mapped); ok {
			e.WithQuery(q.Text())
		}
		return nil, mapped
	}

	result.ExecutionTime = time.Since(start)
	if q.Limit > 0 && result.RowCount == q.Limit {
		result.NextCursor = strconv.Itoa(q.Offset + q.Limit)
	}
	return result, nil
}

func (c *Connector) run(ctx context.Context, q *core.UniversalQuery) (*core.QueryResult, error) {
	if q.IsRaw() {
		return c.runCommand(ctx, q.RawQuery)
	}

	switch q.Type {
	case core.QueryTypeSelect, core.QueryTypePreview:
		return c.runFind(ctx, q)
	case core.QueryTypeInsert:
		if len(q.Values) == 0 {
			return nil, errors.New(errors.ErrorTypeQuery, "INSERT requires values")
		}
		doc := bson.M{}
		for k, v := range q.Values {
			doc[k] = v
		}
		if _, err := c.database().Collection(q.Table).InsertOne(ctx, doc); err != nil {
			return nil, err
		}
		return &core.QueryResult{RowsAffected: 1}, nil
	case core.QueryTypeUpdate:
		if len(q.Values) == 0 {
			return nil, errors.New(errors.ErrorTypeQuery, "UPDATE requires values")
		}
		filter, err := buildFilter(q.Conditions)
		if err != nil {
			return nil, err
		}
		set := bson.M{}
		for k, v := range q.Values {
			set[k] = v
		}
		res, err := c.database().Collection(q.Table).UpdateMany(ctx, filter, bson.M{"$set": set})
		if err != nil {
			return nil, err
		}
		return &core.QueryResult{RowsAffected: res.ModifiedCount}, nil
	case core.QueryTypeDelete:
		filter, err := buildFilter(q.Conditions)
		if err != nil {
			return nil, err
		}
		res, err := c.database().Collection(q.Table).DeleteMany(ctx, filter)
		if err != nil {
			return nil, err
		}
		return &core.QueryResult{RowsAffected: res.DeletedCount}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeQuery,
			"query type %s has no mongodb translation", q.Type)
	}
}

func (c *Connector) runFind(ctx context.Context, q *core.UniversalQuery) (*core.QueryResult, error) {
	if q.Table == "" {
		return nil, errors.New(errors.ErrorTypeQuery, "SELECT requires a source collection")
	}

	filter, err := buildFilter(q.Conditions)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if len(q.Fields) > 0 {
		projection := bson.D{}
		for _, f := range q.Fields {
			projection = append(projection, bson.E{Key: f, Value: 1})
		}
		opts.SetProjection(projection)
	}
	if len(q.OrderBy) > 0 {
		sortDoc := bson.D{}
		for _, o := range q.OrderBy {
			dir := 1
			if o.Descending {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: o.Field, Value: dir})
		}
		opts.SetSort(sortDoc)
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts.SetSkip(int64(q.Offset))
	}

	cursor, err := c.database().Collection(q.Table).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []map[string]interface{}
	columnSet := map[string]struct{}{}
	var columns []string
	for cursor.Next(ctx) {
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(doc))
		for _, el := range doc {
			row[el.Key] = normalizeBSON(el.Value)
			if _, seen := columnSet[el.Key]; !seen {
				columnSet[el.Key] = struct{}{}
				columns = append(columns, el.Key)
			}
		}
		rows = append(rows, row)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return &core.QueryResult{
		Rows:     rows,
		Columns:  columns,
		RowCount: len(rows),
	}, nil
}

// runCommand executes a raw query given as an extended-JSON command
// document, e.g. {"count": "orders"}.
func (c *Connector) runCommand(ctx context.Context, raw string) (*core.QueryResult, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(raw), true, &cmd); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDataValidation,
			"raw mongodb queries must be extended-JSON command documents")
	}

	var reply bson.D
	if err := c.database().RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, err
	}

	row := make(map[string]interface{}, len(reply))
	columns := make([]string, 0, len(reply))
	for _, el := range reply {
		row[el.Key] = normalizeBSON(el.Value)
		columns = append(columns, el.Key)
	}

	return &core.QueryResult{
		Rows:     []map[string]interface{}{row},
		Columns:  columns,
		RowCount: 1,
	}, nil
}

// schemaQueryResult serves SCHEMA-typed queries from collection names.
func (c *Connector) schemaQueryResult(ctx context.Context) (*core.QueryResult, error) {
	start := time.Now()
	collections, err := c.ListTables(ctx)
	c.ObserveQuery(start, err)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(collections))
	for _, coll := range collections {
		rows = append(rows, map[string]interface{}{"table_name": coll})
	}
	return &core.QueryResult{
		Rows:          rows,
		Columns:       []string{"table_name"},
		RowCount:      len(rows),
		ExecutionTime: time.Since(start),
	}, nil
}

// PreviewData samples up to limit documents and reports per-field
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

// buildFilter converts universal conditions to a filter document.
func buildFilter(conds []core.Condition) (bson.M, error) {
	filter := bson.M{}
	for _, cond := range conds {
		var expr interface{}
		switch cond.Op {
		case core.OpEqual:
			expr = cond.Value
		case core.OpNotEqual:
			expr = bson.M{"$ne": cond.Value}
		case core.OpGreater:
			expr = bson.M{"$gt": cond.Value}
		case core.OpGreaterEqual:
			expr = bson.M{"$gte": cond.Value}
		case core.OpLess:
			expr = bson.M{"$lt": cond.Value}
		case core.OpLessEqual:
			expr = bson.M{"$lte": cond.Value}
		case core.OpLike:
			pattern, ok := cond.Value.(string)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeQuery,
					"LIKE condition on %q requires a string pattern", cond.Field)
			}
			expr = primitive.Regex{Pattern: likeToRegex(pattern), Options: "i"}
		case core.OpIn:
			values, ok := cond.Value.([]interface{})
			if !ok || len(values) == 0 {
				return nil, errors.Newf(errors.ErrorTypeQuery,
					"IN condition on %q requires a non-empty value list", cond.Field)
			}
			expr = bson.M{"$in": values}
		default:
			return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported operator %q", cond.Op)
		}
		filter[cond.Field] = expr
	}
	return filter, nil
}

// likeToRegex converts a SQL LIKE pattern to an anchored regex.
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			sb.WriteString("\\")
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString("$")
	return sb.String()
}

// normalizeBSON flattens driver-specific value types for transport.
func normalizeBSON(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time()
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return val.Data
	case bson.D:
		m := make(map[string]interface{}, len(val))
		for _, el := range val {
			m[el.Key] = normalizeBSON(el.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = normalizeBSON(item)
		}
		return out
	default:
		return v
	}
}

// inferDataType classifies a sampled BSON value onto the shared enum.
func inferDataType(v interface{}) core.DataType {
	switch v.(type) {
	case string:
		return core.DataTypeString
	case int32, int64, int:
		return core.DataTypeInteger
	case float32, float64:
		return core.DataTypeFloat
	case primitive.Decimal128:
		return core.DataTypeDecimal
	case bool:
		return core.DataTypeBoolean
	case primitive.DateTime, time.Time:
		return core.DataTypeDateTime
	case primitive.ObjectID:
		return core.DataTypeUUID
	case primitive.Binary:
		return core.DataTypeBinary
	case bson.D, bson.M:
		return core.DataTypeObject
	case bson.A:
		return core.DataTypeArray
	case nil:
		return core.DataTypeUnknown
	default:
		return core.DataTypeUnknown
	}
}

// mapError translates driver errors into the shared taxonomy.
func (c *Connector) mapError(err error, fallback errors.ErrorType, message string) error {
	if err == nil {
		return nil
	}

	errType := fallback
	switch {
	case mongo.IsTimeout(err):
		errType = errors.ErrorTypeTimeout
	case mongo.IsNetworkError(err):
		errType = errors.ErrorTypeConnection
	case isAuthError(err):
		errType = errors.ErrorTypeAuthentication
	case mongo.IsDuplicateKeyError(err):
		errType = errors.ErrorTypeDataValidation
	default:
		if _, ok := errors.As(err); ok {
			return c.Translate(err, fallback, message)
		}
		var cmdErr mongo.CommandError
		if stderrors.As(err, &cmdErr) {
			switch cmdErr.Code {
			case 13: // Unauthorized
				errType = errors.ErrorTypePermission
			case 18: // AuthenticationFailed
				errType = errors.ErrorTypeAuthentication
			case 50: // MaxTimeMSExpired
				errType = errors.ErrorTypeTimeout
			case 26: // NamespaceNotFound
				errType = errors.ErrorTypeNotFound
			}
		}
	}

	if errType == fallback {
		return c.Translate(err, fallback, message)
	}
	return errors.Wrap(err, errType, message).
		WithConnector(string(c.Type()), c.ID())
}

func isAuthError(err error) bool {
	var cmdErr mongo.CommandError
	return stderrors.As(err, &cmdErr) && cmdErr.Code == 18
}
