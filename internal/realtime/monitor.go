package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/camayank/clientportal-realtime/internal/metrics"
)

// DefaultProbeInterval bounds detection of a silently-dead peer to at most
// twice the interval without any application-level heartbeat payload.
const DefaultProbeInterval = 30 * time.Second

// Monitor periodically probes every registered connection. Each tick it
// terminates connections whose alive flag was never set since the previous
// probe, then clears the flag and pings the survivors. Only a pong sets the
// flag again.
type Monitor struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration

	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewMonitor(registry *Registry, clock clockwork.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		registry:    registry,
		clock:       clock,
		interval:    interval,
		doneChannel: make(chan struct{}),
	}
}

// Start launches the probe loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.doneChannel)
	})
	m.wg.Wait()
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.sweep()
		case <-m.doneChannel:
			return
		}
	}
}

func (m *Monitor) sweep() {
	for _, conn := range m.registry.All() {
		if !conn.Alive() {
			identity := conn.Identity()
			slog.Info("Pruning dead connection: no probe response",
				"user_id", int64(identity.UserID),
				"connection_id", conn.ID().String(),
			)
			metrics.LivenessPruned.Inc()
			conn.Close("liveness timeout")
			m.registry.Unregister(identity.UserID, conn)
			continue
		}

		conn.ClearAlive()
		if err := conn.Ping(); err != nil {
			slog.Debug("Liveness probe not sent",
				"connection_id", conn.ID().String(),
				"error", err,
			)
		}
	}
}
