package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/dataconnect/pkg/config"
	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

// fakeConnector is an in-memory core.Connector for registry tests.
type fakeConnector struct {
	id  string
	cfg *config.ConnectorConfig

	connected   atomic.Bool
	connectErr  error
	healthy     atomic.Bool
	connects    atomic.Int64
	disconnects atomic.Int64
	probes      atomic.Int64

	mu       sync.Mutex
	lastUsed time.Time
}

func newFake(t *testing.T, name string) *fakeConnector {
	t.Helper()
	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, name)
	require.NoError(t, err)
	f := &fakeConnector{id: uuid.NewString(), cfg: cfg, lastUsed: time.Now()}
	f.healthy.Store(true)
	return f
}

func (f *fakeConnector) ID() string                      { return f.id }
func (f *fakeConnector) Name() string                    { return f.cfg.Name }
func (f *fakeConnector) Type() config.ConnectorType      { return f.cfg.Type }
func (f *fakeConnector) Config() *config.ConnectorConfig { return f.cfg }
func (f *fakeConnector) CreatedAt() time.Time            { return time.Time{} }

func (f *fakeConnector) LastUsed() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUsed
}

func (f *fakeConnector) setLastUsed(t time.Time) {
	f.mu.Lock()
	f.lastUsed = t
	f.mu.Unlock()
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.connects.Add(1)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	f.disconnects.Add(1)
	f.connected.Store(false)
	return nil
}

func (f *fakeConnector) IsConnected() bool { return f.connected.Load() }

func (f *fakeConnector) TestConnection(ctx context.Context) (*core.TestResult, error) {
	return &core.TestResult{Success: true}, nil
}

func (f *fakeConnector) HealthStatus(ctx context.Context) *core.HealthStatus {
	f.probes.Add(1)
	if f.healthy.Load() {
		return &core.HealthStatus{Healthy: true, Connected: f.IsConnected(), Status: core.StatusHealthy}
	}
	return &core.HealthStatus{Connected: f.IsConnected(), Status: core.StatusUnhealthy}
}

func (f *fakeConnector) DiscoverSchema(ctx context.Context) (*core.SchemaInfo, error) {
	return &core.SchemaInfo{}, nil
}

func (f *fakeConnector) ListTables(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeConnector) GetColumnInfo(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	return nil, nil
}

func (f *fakeConnector) ExecuteQuery(ctx context.Context, q *core.UniversalQuery) (*core.QueryResult, error) {
	return &core.QueryResult{}, nil
}

func (f *fakeConnector) PreviewData(ctx context.Context, table string, limit int) (*core.PreviewResult, error) {
	return &core.PreviewResult{}, nil
}

func (f *fakeConnector) Metrics() core.MetricsSnapshot { return core.MetricsSnapshot{} }

func TestRegisterAndLookup(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close(context.Background())

	f := newFake(t, "primary")
	require.NoError(t, r.Register(f))

	got, err := r.Get(f.ID())
	require.NoError(t, err)
	assert.Equal(t, f.ID(), got.ID())

	byName, err := r.GetByName("primary")
	require.NoError(t, err)
	assert.Equal(t, f.ID(), byName.ID())

	assert.Equal(t, 1, r.Size())
}

func TestRegisterDuplicateNameRejected(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close(context.Background())

	first := newFake(t, "primary")
	require.NoError(t, r.Register(first))

	second := newFake(t, "primary")
	err := r.Register(second)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	// The first registration is untouched and the second left no trace.
	got, err := r.GetByName("primary")
	require.NoError(t, err)
	assert.Equal(t, first.ID(), got.ID())
	assert.Equal(t, 1, r.Size())
	_, err = r.Get(second.ID())
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestUnregisterStopsMonitorAndDisconnects(t *testing.T) {
	r := New(nil, Options{HealthInterval: 10 * time.Millisecond})

	f := newFake(t, "primary")
	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, r.Register(f))

	// Let the monitor run at least once.
	assert.Eventually(t, func() bool { return f.probes.Load() > 0 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, r.Unregister(context.Background(), f.ID()))
	assert.False(t, f.IsConnected())

	// No probe activity after unregistration.
	settled := f.probes.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, f.probes.Load())

	_, err := r.Get(f.ID())
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestConcurrentUnregister(t *testing.T) {
	r := New(nil, Options{HealthInterval: time.Hour})

	f := newFake(t, "primary")
	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, r.Register(f))

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Unregister(context.Background(), f.ID()); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one caller wins; the rest see not-found, and the
	// connector is torn down once.
	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(1), f.disconnects.Load())
	assert.Zero(t, r.Size())
}

func TestUnregisterUnknownID(t *testing.T) {
	r := New(nil, Options{})
	err := r.Unregister(context.Background(), "no-such-id")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestAutoReconnect(t *testing.T) {
	r := New(nil, Options{HealthInterval: 10 * time.Millisecond, AutoReconnect: true})
	defer r.Close(context.Background())

	f := newFake(t, "flaky")
	f.healthy.Store(false)
	require.NoError(t, r.Register(f))

	// Disconnected and unhealthy: the monitor should reconnect it.
	assert.Eventually(t, func() bool { return f.IsConnected() },
		time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, f.connects.Load(), int64(1))
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	r := New(nil, Options{HealthInterval: 10 * time.Millisecond})
	defer r.Close(context.Background())

	f := newFake(t, "flaky")
	f.healthy.Store(false)
	require.NoError(t, r.Register(f))

	assert.Eventually(t, func() bool { return f.probes.Load() >= 3 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, f.connects.Load())
	assert.False(t, f.IsConnected())
}

func TestListAndListByType(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close(context.Background())

	b := newFake(t, "beta")
	a := newFake(t, "alpha")
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(a))

	names := make([]string, 0, 2)
	for _, conn := range r.List() {
		names = append(names, conn.Name())
	}
	assert.Equal(t, []string{"alpha", "beta"}, names)

	assert.Len(t, r.ListByType(config.ConnectorTypePostgreSQL), 2)
	assert.Empty(t, r.ListByType(config.ConnectorTypeMongoDB))
}

func TestBulkOperations(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close(context.Background())

	ok := newFake(t, "ok")
	bad := newFake(t, "bad")
	bad.connectErr = errors.New(errors.ErrorTypeConnection, "refused")
	require.NoError(t, r.Register(ok))
	require.NoError(t, r.Register(bad))

	failures := r.ConnectAll(context.Background())
	assert.Len(t, failures, 1)
	assert.Contains(t, failures, bad.ID())
	assert.True(t, ok.IsConnected())

	health := r.HealthCheckAll(context.Background())
	assert.Len(t, health, 2)

	assert.Empty(t, r.DisconnectAll(context.Background()))
	assert.False(t, ok.IsConnected())
}

func TestCleanupInactive(t *testing.T) {
	r := New(nil, Options{})
	defer r.Close(context.Background())

	stale := newFake(t, "stale")
	stale.setLastUsed(time.Now().Add(-45 * time.Minute))

	fresh := newFake(t, "fresh")
	fresh.setLastUsed(time.Now().Add(-10 * time.Minute))

	busy := newFake(t, "busy")
	require.NoError(t, busy.Connect(context.Background()))
	busy.setLastUsed(time.Now().Add(-45 * time.Minute))

	require.NoError(t, r.Register(stale))
	require.NoError(t, r.Register(fresh))
	require.NoError(t, r.Register(busy))

	removed := r.CleanupInactive(context.Background(), 30*time.Minute)
	assert.Equal(t, []string{stale.ID()}, removed)

	// Idle-but-recent and connected connectors survive.
	assert.Equal(t, 2, r.Size())
	_, err := r.GetByName("fresh")
	assert.NoError(t, err)
	_, err = r.GetByName("busy")
	assert.NoError(t, err)
}

func TestCloseRefusesNewRegistrations(t *testing.T) {
	r := New(nil, Options{})

	f := newFake(t, "primary")
	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, r.Register(f))
	require.NoError(t, r.Close(context.Background()))

	assert.False(t, f.IsConnected())
	assert.Zero(t, r.Size())

	err := r.Register(newFake(t, "late"))
	require.Error(t, err)
}

func TestCreateAndRegister(t *testing.T) {
	f := NewFactory()
	require.NoError(t, f.Register(config.ConnectorTypePostgreSQL,
		func(cfg *config.ConnectorConfig) (core.Connector, error) {
			fake := &fakeConnector{id: uuid.NewString(), cfg: cfg, lastUsed: time.Now()}
			fake.healthy.Store(true)
			return fake, nil
		}))

	r := New(f, Options{})
	defer r.Close(context.Background())

	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "primary")
	require.NoError(t, err)

	conn, err := r.CreateAndRegister(cfg)
	require.NoError(t, err)
	assert.False(t, conn.IsConnected())
	assert.Equal(t, 1, r.Size())

	// A duplicate name fails and registers nothing new.
	dup, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "primary")
	require.NoError(t, err)
	_, err = r.CreateAndRegister(dup)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
	assert.Equal(t, 1, r.Size())

	// Without a factory the config path is unavailable.
	bare := New(nil, Options{})
	_, err = bare.CreateAndRegister(cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	ctor := func(cfg *config.ConnectorConfig) (core.Connector, error) {
		fake := &fakeConnector{id: uuid.NewString(), cfg: cfg, lastUsed: time.Now()}
		fake.healthy.Store(true)
		return fake, nil
	}

	require.NoError(t, f.Register(config.ConnectorTypePostgreSQL, ctor))
	assert.True(t, f.Supports(config.ConnectorTypePostgreSQL))
	assert.False(t, f.Supports(config.ConnectorTypeMySQL))

	// Rebinding a type is a conflict.
	err := f.Register(config.ConnectorTypePostgreSQL, ctor)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	cfg, err := config.NewConnectorConfig(config.ConnectorTypePostgreSQL, "made")
	require.NoError(t, err)
	conn, err := f.Create(cfg)
	require.NoError(t, err)
	assert.Equal(t, "made", conn.Name())

	// Unregistered types and invalid configs are refused.
	other, err := config.NewConnectorConfig(config.ConnectorTypeMySQL, "nope")
	require.NoError(t, err)
	_, err = f.Create(other)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))

	_, err = f.Create(nil)
	assert.Error(t, err)

	assert.Equal(t, []config.ConnectorType{config.ConnectorTypePostgreSQL}, f.Supported())
}
