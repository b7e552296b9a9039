package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/camayank/clientportal-realtime/internal/domain"
	"github.com/camayank/clientportal-realtime/internal/metrics"
)

// Dispatcher parses inbound frames and routes them by declared type.
//
// A frame that fails to parse never terminates the connection: the sender
// gets an error notification and service continues. A frame with an unknown
// type is a forward-compatible no-op.
type Dispatcher struct {
	broadcaster *Broadcaster
	clock       clockwork.Clock
}

func NewDispatcher(broadcaster *Broadcaster, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{
		broadcaster: broadcaster,
		clock:       clock,
	}
}

// HandleFrame processes one inbound frame from sender.
func (d *Dispatcher) HandleFrame(ctx context.Context, sender *Conn, raw []byte) {
	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		metrics.MessagesDispatched.WithLabelValues("unknown", "malformed").Inc()
		d.replyError(sender, "invalid message format")
		return
	}

	switch msg.Type {
	case domain.MessageChat:
		d.handleChat(sender, msg.Payload)
	case domain.MessageActivity:
		d.handleActivity(ctx, sender, msg.Payload)
	case domain.MessageMilestoneCreated, domain.MessageMilestoneUpdated:
		d.handleMilestone(ctx, sender, msg.Type, msg.Payload)
	default:
		// Unknown types are ignored so newer clients can speak to older
		// servers without breaking their connection.
		metrics.MessagesDispatched.WithLabelValues(string(msg.Type), "ignored").Inc()
	}
}

// handleChat delivers a chat message directly to its recipient, or to all
// admin connections when no recipient is named (clients reach the portal's
// support staff that way).
func (d *Dispatcher) handleChat(sender *Conn, payload json.RawMessage) {
	var inbound domain.ChatInbound
	if err := json.Unmarshal(payload, &inbound); err != nil {
		metrics.MessagesDispatched.WithLabelValues(string(domain.MessageChat), "malformed").Inc()
		d.replyError(sender, "invalid chat payload")
		return
	}

	event := domain.ChatEvent{
		SenderID:  sender.Identity().UserID,
		Content:   inbound.Content,
		Timestamp: d.clock.Now(),
	}
	out, err := domain.NewMessage(domain.MessageChat, event)
	if err != nil {
		slog.Error("Failed to build chat event", "error", err)
		return
	}

	if inbound.RecipientID != nil {
		d.broadcaster.SendToUser(*inbound.RecipientID, out)
	} else {
		d.broadcaster.BroadcastToRole(domain.RoleAdmin, out)
	}
	metrics.MessagesDispatched.WithLabelValues(string(domain.MessageChat), "handled").Inc()
}

// handleActivity rebroadcasts a project activity event to the project's
// members. These frames are system-originated in normal operation, so a
// missing projectId is dropped silently rather than answered with an error.
func (d *Dispatcher) handleActivity(ctx context.Context, sender *Conn, payload json.RawMessage) {
	var event domain.ActivityEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ProjectID == 0 {
		metrics.MessagesDispatched.WithLabelValues(string(domain.MessageActivity), "dropped").Inc()
		return
	}

	event.UserID = sender.Identity().UserID
	event.Timestamp = d.clock.Now()

	out, err := domain.NewMessage(domain.MessageActivity, event)
	if err != nil {
		slog.Error("Failed to build activity event", "error", err)
		return
	}

	d.broadcaster.BroadcastToProjectMembers(ctx, event.ProjectID, out)
	metrics.MessagesDispatched.WithLabelValues(string(domain.MessageActivity), "handled").Inc()
}

func (d *Dispatcher) handleMilestone(ctx context.Context, sender *Conn, msgType domain.MessageType, payload json.RawMessage) {
	var event domain.MilestoneEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.ProjectID == 0 {
		metrics.MessagesDispatched.WithLabelValues(string(msgType), "dropped").Inc()
		return
	}

	event.UpdatedBy = sender.Identity().UserID
	event.Timestamp = d.clock.Now()

	out, err := domain.NewMessage(msgType, event)
	if err != nil {
		slog.Error("Failed to build milestone event", "error", err)
		return
	}

	d.broadcaster.BroadcastToProjectMembers(ctx, event.ProjectID, out)
	metrics.MessagesDispatched.WithLabelValues(string(msgType), "handled").Inc()
}

func (d *Dispatcher) replyError(sender *Conn, message string) {
	if err := sender.Send(domain.ErrorNotification(message, d.clock.Now())); err != nil {
		slog.Debug("Failed to send error notification",
			"connection_id", sender.ID().String(),
			"error", err,
		)
	}
}
