package realtime

import (
	"log/slog"
	"sync"

	"github.com/camayank/clientportal-realtime/internal/domain"
	"github.com/camayank/clientportal-realtime/internal/metrics"
)

// Registry maps each user to its single active connection. It is an
// explicitly constructed instance injected into the dispatcher and broadcast
// engine, never a process-wide singleton.
//
// Invariant: at most one entry per user, and no entry exists without a live
// connection behind it.
type Registry struct {
	mu    sync.Mutex
	conns map[domain.UserID]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]*Conn),
	}
}

// Register inserts a connection, transitioning it to Open. A single active
// session per user is enforced: if the user already has a connection, the
// existing one is terminated and replaced (latest connect wins). The swap is
// atomic with respect to concurrent Register/Unregister calls.
func (r *Registry) Register(conn *Conn) {
	identity := conn.Identity()

	r.mu.Lock()
	previous := r.conns[identity.UserID]
	r.conns[identity.UserID] = conn
	conn.markOpen()
	size := len(r.conns)
	r.mu.Unlock()

	if previous != nil {
		metrics.ConnectionsReplaced.Inc()
		slog.Info("Replacing existing connection for user",
			"user_id", int64(identity.UserID),
			"old_connection_id", previous.ID().String(),
			"new_connection_id", conn.ID().String(),
		)
		previous.Close("replaced by a newer session")
	}

	metrics.ConnectionsCurrent.Set(float64(size))
	slog.Debug("Connection registered",
		"user_id", int64(identity.UserID),
		"connection_id", conn.ID().String(),
		"registry_size", size,
	)
}

// Lookup returns the user's active connection, or nil.
func (r *Registry) Lookup(userID domain.UserID) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID]
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Unregister removes the user's entry if it still refers to conn. The guard
// keeps a stale disconnect (the read pump of a replaced connection winding
// down) from evicting the replacement. Removing an absent entry is a no-op.
func (r *Registry) Unregister(userID domain.UserID, conn *Conn) {
	r.mu.Lock()
	current, exists := r.conns[userID]
	if !exists || current != conn {
		r.mu.Unlock()
		return
	}
	delete(r.conns, userID)
	size := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsCurrent.Set(float64(size))
	slog.Debug("Connection unregistered",
		"user_id", int64(userID),
		"connection_id", conn.ID().String(),
		"registry_size", size,
	)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll terminates every connection with the given reason and empties the
// registry. Used during graceful shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[domain.UserID]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close(reason)
	}
	metrics.ConnectionsCurrent.Set(0)
}
