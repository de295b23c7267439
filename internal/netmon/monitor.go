// Package netmon tracks connectivity as reported by the platform shell.
// There is no polling: the shell pushes online/offline transitions through
// the control API, and the send path reports unreachability when a
// delivery attempt dies on the wire.
package netmon

import (
	"sync"
	"time"

	"github.com/perkshq/perks/internal/bus"
	"go.uber.org/zap"
)

// Monitor holds the current connectivity state and publishes transitions
// on the bus.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a monitor. Daemons start offline until the shell reports
// otherwise; an early drain against a dead network would just burn retry
// budget.
func New(b *bus.Bus, logger *zap.Logger) *Monitor {
	return &Monitor{bus: b, logger: logger}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity transition. Publishing only happens on
// an actual change, so repeated notifications from the shell are cheap.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	kind := bus.KindNetOffline
	if online {
		kind = bus.KindNetOnline
	}
	m.logger.Info("connectivity changed", zap.Bool("online", online))
	m.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now()})
}

// ReportUnreachable flips the monitor offline. Called by the send path when
// a delivery attempt fails at the transport layer, so indicators stay
// truthful even before the shell notices.
func (m *Monitor) ReportUnreachable() {
	m.SetOnline(false)
}
