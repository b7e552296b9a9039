package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/camayank/clientportal-realtime/internal/domain"
	"github.com/camayank/clientportal-realtime/internal/metrics"
)

// Broadcaster computes the recipient set for an outbound event and performs
// best-effort delivery. For project broadcasts it consults the external
// project directory on every call; membership is never cached, concurrent
// duplicate lookups are merely collapsed via singleflight.
//
// None of the methods return an error: delivery failures are logged and
// dropped, and a resolver failure aborts only the call that triggered it.
type Broadcaster struct {
	registry *Registry
	projects domain.ProjectDirectory
	group    singleflight.Group
}

func NewBroadcaster(registry *Registry, projects domain.ProjectDirectory) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		projects: projects,
	}
}

// SendToUser delivers msg to the user's connection if one is open. A user
// without an open connection is a silent no-op, not an error.
func (b *Broadcaster) SendToUser(userID domain.UserID, msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "type", string(msg.Type), "error", err)
		metrics.BroadcastsTotal.WithLabelValues("user", "aborted").Inc()
		return
	}

	delivered := b.deliverToUser(userID, data)
	if delivered {
		metrics.BroadcastRecipients.Observe(1)
	} else {
		metrics.BroadcastRecipients.Observe(0)
	}
	metrics.BroadcastsTotal.WithLabelValues("user", "ok").Inc()
}

// BroadcastToRole delivers msg to every connection whose identity carries the
// given role.
func (b *Broadcaster) BroadcastToRole(role domain.Role, msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "type", string(msg.Type), "error", err)
		metrics.BroadcastsTotal.WithLabelValues("role", "aborted").Inc()
		return
	}

	delivered := 0
	for _, conn := range b.registry.All() {
		if conn.Identity().Role != role {
			continue
		}
		if b.deliver(conn, data) {
			delivered++
		}
	}

	metrics.BroadcastRecipients.Observe(float64(delivered))
	metrics.BroadcastsTotal.WithLabelValues("role", "ok").Inc()
}

// BroadcastAll delivers msg to every registered connection.
func (b *Broadcaster) BroadcastAll(msg domain.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "type", string(msg.Type), "error", err)
		metrics.BroadcastsTotal.WithLabelValues("all", "aborted").Inc()
		return
	}

	delivered := 0
	for _, conn := range b.registry.All() {
		if b.deliver(conn, data) {
			delivered++
		}
	}

	metrics.BroadcastRecipients.Observe(float64(delivered))
	metrics.BroadcastsTotal.WithLabelValues("all", "ok").Inc()
}

// BroadcastToProjectMembers resolves the project's membership and delivers
// msg to the owning client, the assigned staff member, and every admin
// connection. Admins observe all project activity. If the resolver fails or
// the project is unknown, the call is logged and aborted; nothing propagates
// to the caller and no partial delivery is retried.
func (b *Broadcaster) BroadcastToProjectMembers(ctx context.Context, projectID int64, msg domain.Message) {
	// Capture the payload by value before the resolver await so concurrent
	// mutation of its source cannot change what is delivered.
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal message", "type", string(msg.Type), "error", err)
		metrics.BroadcastsTotal.WithLabelValues("project", "aborted").Inc()
		return
	}

	result, err, _ := b.group.Do(strconv.FormatInt(projectID, 10), func() (any, error) {
		return b.projects.ProjectMembers(ctx, projectID)
	})
	if err != nil {
		slog.Error("Project membership lookup failed, aborting broadcast",
			"project_id", projectID,
			"error", err,
		)
		metrics.LookupFailures.WithLabelValues("project").Inc()
		metrics.BroadcastsTotal.WithLabelValues("project", "aborted").Inc()
		return
	}
	membership := result.(domain.ProjectMembership)

	// Deduplicate by user so an admin who also owns the project receives the
	// event exactly once.
	recipients := map[domain.UserID]struct{}{
		membership.OwnerID:         {},
		membership.AssignedStaffID: {},
	}
	for _, conn := range b.registry.All() {
		if conn.Identity().Role == domain.RoleAdmin {
			recipients[conn.Identity().UserID] = struct{}{}
		}
	}

	delivered := 0
	for userID := range recipients {
		if b.deliverToUser(userID, data) {
			delivered++
		}
	}

	metrics.BroadcastRecipients.Observe(float64(delivered))
	metrics.BroadcastsTotal.WithLabelValues("project", "ok").Inc()
}

func (b *Broadcaster) deliverToUser(userID domain.UserID, data []byte) bool {
	conn := b.registry.Lookup(userID)
	if conn == nil {
		metrics.DeliveryDrops.WithLabelValues("offline").Inc()
		slog.Debug("Recipient has no open connection", "user_id", int64(userID))
		return false
	}
	return b.deliver(conn, data)
}

func (b *Broadcaster) deliver(conn *Conn, data []byte) bool {
	if err := conn.SendBytes(data); err != nil {
		slog.Debug("Delivery failed",
			"user_id", int64(conn.Identity().UserID),
			"connection_id", conn.ID().String(),
			"error", err,
		)
		return false
	}
	return true
}
