package mysql

import (
	"context"
	"crypto/tls"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	godriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

// mockConnector wires a sqlmock pool into a connector that believes it
// is connected, so query paths can be exercised without a server.
func mockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock) {
	t.Helper()

	cfg, err := config.NewConnectorConfig(config.ConnectorTypeMySQL, "mysql-test",
		config.WithEndpoint("db.internal", 3306, "analytics"))
	require.NoError(t, err)

	raw, err := New(cfg)
	require.NoError(t, err)
	c := raw.(*Connector)

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c.db = db
	c.MarkConnected()
	return c, mock
}

func TestNewRejectsWrongType(t *testing.T) {
	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "wrong")
	require.NoError(t, err)

	_, err = New(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestExecuteSelect(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery("SELECT `id`, `total` FROM `orders` WHERE `status` = ?").
		WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).
			AddRow(int64(1), 12.5).
			AddRow(int64(2), 7.25))

	q := core.NewQuery(core.QueryTypeSelect).
		Select("id", "total").
		From("orders").
		Where("status", core.OpEqual, "open")

	result, err := c.ExecuteQuery(context.Background(), &q)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"id", "total"}, result.Columns)
	assert.Equal(t, int64(1), result.Rows[0]["id"])
	assert.Empty(t, result.NextCursor)

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.SuccessfulQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteInsertReportsRowsAffected(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectExec("INSERT INTO `orders` (`status`, `total`) VALUES (?, ?)").
		WithArgs("open", 9.99).
		WillReturnResult(sqlmock.NewResult(42, 1))

	q := core.NewQuery(core.QueryTypeInsert).
		From("orders").
		Set("status", "open").
		Set("total", 9.99)

	result, err := c.ExecuteQuery(context.Background(), &q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsAffected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryPagination(t *testing.T) {
	c, mock := mockConnector(t)

	rows := sqlmock.NewRows([]string{"id"})
	for i := 0; i < 2; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery("SELECT * FROM `orders` LIMIT 2 OFFSET 4").WillReturnRows(rows)

	q := core.NewQuery(core.QueryTypeSelect).From("orders").WithLimit(2).WithOffset(4)
	result, err := c.ExecuteQuery(context.Background(), &q)
	require.NoError(t, err)
	// Full page: cursor points at the next offset.
	assert.Equal(t, "6", result.NextCursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryFailureIsTypedAndCounted(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery("SELECT * FROM `orders`").
		WillReturnError(&godriver.MySQLError{Number: 1064, Message: "syntax error"})

	q := core.NewQuery(core.QueryTypeSelect).From("orders")
	_, err := c.ExecuteQuery(context.Background(), &q)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, string(config.ConnectorTypeMySQL), e.ConnectorType)
	assert.Equal(t, "SELECT * FROM `orders`", e.Query)

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryWhileDisconnectedFailsWithoutNetwork(t *testing.T) {
	cfg, err := config.NewConnectorConfig(config.ConnectorTypeMySQL, "offline",
		config.WithEndpoint("db.internal", 3306, "analytics"))
	require.NoError(t, err)

	raw, err := New(cfg)
	require.NoError(t, err)
	c := raw.(*Connector)

	q := core.NewQuery(core.QueryTypeSelect).From("orders")
	_, err = c.ExecuteQuery(context.Background(), &q)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)
}

func TestUntranslatableQueryIsTaggedAndCounted(t *testing.T) {
	c, mock := mockConnector(t)

	q := core.NewQuery(core.QueryTypeSelect) // no source table
	_, err := c.ExecuteQuery(context.Background(), &q)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))

	e, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, string(config.ConnectorTypeMySQL), e.ConnectorType)
	assert.Equal(t, c.ID(), e.ConnectorID)

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDisconnectDeregistersTLSProfile(t *testing.T) {
	c, mock := mockConnector(t)
	mock.ExpectClose()

	profile := "dataconnect-" + c.ID()
	require.NoError(t, godriver.RegisterTLSConfig(profile, &tls.Config{MinVersion: tls.VersionTLS12}))
	c.tlsProfile = profile

	require.NoError(t, c.Disconnect(context.Background()))
	assert.Empty(t, c.tlsProfile)

	// Idempotent when no profile is registered.
	require.NoError(t, c.Disconnect(context.Background()))
}

func TestPreviewDataCompleteness(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery("SELECT * FROM `orders` LIMIT 3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "note"}).
			AddRow(int64(1), "a").
			AddRow(int64(2), nil).
			AddRow(int64(3), nil))

	preview, err := c.PreviewData(context.Background(), "orders", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.SampleSize)
	assert.InDelta(t, 1.0, preview.Completeness["id"], 1e-9)
	assert.InDelta(t, 1.0/3.0, preview.Completeness["note"], 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTables(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`).
		WithArgs("analytics").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("menu_items").
			AddRow("orders"))

	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"menu_items", "orders"}, tables)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetColumnInfo(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery(`
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`).
		WithArgs("analytics", "orders").
		WillReturnRows(sqlmock.NewRows(
			[]string{"column_name", "data_type", "is_nullable", "column_default", "column_key"}).
			AddRow("id", "bigint", "NO", nil, "PRI").
			AddRow("total", "decimal", "YES", "0.00", ""))

	columns, err := c.GetColumnInfo(context.Background(), "orders")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, core.DataTypeInteger, columns[0].Type)
	assert.True(t, columns[0].PrimaryKey)
	assert.Equal(t, core.DataTypeDecimal, columns[1].Type)
	assert.True(t, columns[1].Nullable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetColumnInfoUnknownTable(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery(`
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`).
		WithArgs("analytics", "ghost").
		WillReturnRows(sqlmock.NewRows(
			[]string{"column_name", "data_type", "is_nullable", "column_default", "column_key"}))

	_, err := c.GetColumnInfo(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))
}

func TestQueryTimeoutIsTypedAndCounted(t *testing.T) {
	c, mock := mockConnector(t)

	mock.ExpectQuery("SELECT * FROM `orders`").
		WillDelayFor(500 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	q := core.NewQuery(core.QueryTypeSelect).From("orders").WithTimeout(20 * time.Millisecond)
	_, err := c.ExecuteQuery(context.Background(), &q)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.FailedQueries)
}

func TestSchemaRoundTrip(t *testing.T) {
	c, mock := mockConnector(t)

	tablesQuery := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	columnsQuery := `
		SELECT column_name, data_type, is_nullable, column_default, column_key
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`
	columnRows := func() *sqlmock.Rows {
		return sqlmock.NewRows(
			[]string{"column_name", "data_type", "is_nullable", "column_default", "column_key"}).
			AddRow("id", "bigint", "NO", nil, "PRI").
			AddRow("status", "varchar", "YES", nil, "")
	}

	mock.ExpectQuery(tablesQuery).WithArgs("analytics").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	mock.ExpectQuery(columnsQuery).WithArgs("analytics", "orders").
		WillReturnRows(columnRows())

	info, err := c.DiscoverSchema(context.Background())
	require.NoError(t, err)

	table, ok := info.Table("orders")
	require.True(t, ok)
	assert.Equal(t, "analytics", table.Schema)

	// Describing the table directly yields the same columns.
	mock.ExpectQuery(columnsQuery).WithArgs("analytics", "orders").
		WillReturnRows(columnRows())
	columns, err := c.GetColumnInfo(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, table.Columns, columns)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapErrorNumbers(t *testing.T) {
	c, _ := mockConnector(t)

	cases := []struct {
		number uint16
		want   errors.ErrorType
	}{
		{1045, errors.ErrorTypeAuthentication},
		{1142, errors.ErrorTypePermission},
		{1064, errors.ErrorTypeQuery},
		{1040, errors.ErrorTypeRateLimit},
		{3024, errors.ErrorTypeTimeout},
		{1062, errors.ErrorTypeDataValidation},
		{2006, errors.ErrorTypeConnection},
	}
	for _, tc := range cases {
		err := c.mapError(&godriver.MySQLError{Number: tc.number}, errors.ErrorTypeInternal, "op failed")
		assert.Truef(t, errors.IsType(err, tc.want), "errno %d should map to %s", tc.number, tc.want)
	}

	generic := c.mapError(fmt.Errorf("weird"), errors.ErrorTypeQuery, "op failed")
	assert.True(t, errors.IsType(generic, errors.ErrorTypeQuery))
}

func TestMapDataType(t *testing.T) {
	assert.Equal(t, core.DataTypeInteger, mapDataType("bigint"))
	assert.Equal(t, core.DataTypeFloat, mapDataType("double"))
	assert.Equal(t, core.DataTypeDecimal, mapDataType("decimal"))
	assert.Equal(t, core.DataTypeString, mapDataType("varchar"))
	assert.Equal(t, core.DataTypeDateTime, mapDataType("timestamp"))
	assert.Equal(t, core.DataTypeJSON, mapDataType("json"))
	assert.Equal(t, core.DataTypeBinary, mapDataType("blob"))
	assert.Equal(t, core.DataTypeUnknown, mapDataType("geometry"))
}
