package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/metrics"
)

// DefaultHealthInterval is used when the registry options leave the
// probe interval unset.
const DefaultHealthInterval = 300 * time.Second

// healthMonitor periodically probes one connector and optionally
// attempts a single reconnect per cycle when the connector has dropped
// its connection. The registry owns its lifecycle: started on
// registration, stopped before unregistration.
type healthMonitor struct {
	conn          core.Connector
	log           *zap.Logger
	interval      time.Duration
	autoReconnect bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newHealthMonitor(conn core.Connector, log *zap.Logger, interval time.Duration, autoReconnect bool) *healthMonitor {
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &healthMonitor{
		conn:          conn,
		log:           log,
		interval:      interval,
		autoReconnect: autoReconnect,
		stopCh:        make(chan struct{}),
	}
}

func (m *healthMonitor) start() {
	m.wg.Add(1)
	go m.loop()
}

// stop signals the loop and waits for it to exit. After stop returns
// the monitor performs no further activity on the connector.
func (m *healthMonitor) stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *healthMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *healthMonitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	status := m.conn.HealthStatus(ctx)
	metrics.ObserveHealthCheck(string(m.conn.Type()), m.conn.Name(), status.Healthy)

	if status.Healthy {
		return
	}

	m.log.Warn("health check failed",
		zap.String("status", status.Status),
		zap.String("error", status.Err))

	// One reconnect attempt per cycle, and only when the connection is
	// actually gone. A degraded but connected instance is left alone.
	if !m.autoReconnect || m.conn.IsConnected() {
		return
	}

	err := m.conn.Connect(ctx)
	metrics.ObserveReconnect(string(m.conn.Type()), m.conn.Name(), err)
	if err != nil {
		m.log.Warn("automatic reconnect failed", zap.Error(err))
		return
	}
	m.log.Info("automatic reconnect succeeded")
}
