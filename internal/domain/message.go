package domain

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the wire message union.
type MessageType string

const (
	MessageChat             MessageType = "chat"
	MessageNotification     MessageType = "notification"
	MessageActivity         MessageType = "activity"
	MessageMilestoneCreated MessageType = "milestone_created"
	MessageMilestoneUpdated MessageType = "milestone_updated"
)

// Message is the single-frame wire envelope: {"type": ..., "payload": {...}}.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage builds an envelope from a typed payload.
func NewMessage(t MessageType, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: data}, nil
}

// ChatInbound is the payload a connected client may send. A missing
// recipientId means the message goes to all admin connections.
type ChatInbound struct {
	RecipientID *UserID `json:"recipientId,omitempty"`
	Content     string  `json:"content"`
}

// ChatEvent is the outbound chat payload.
type ChatEvent struct {
	SenderID  UserID    `json:"senderId"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationEvent is the outbound notification payload.
type NotificationEvent struct {
	Type      string    `json:"type"` // "success" or "error"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ActivityEvent is the outbound project-activity payload.
type ActivityEvent struct {
	ProjectID    int64           `json:"projectId"`
	ActivityType string          `json:"activityType"`
	Data         json.RawMessage `json:"data,omitempty"`
	UserID       UserID          `json:"userId"`
	Timestamp    time.Time       `json:"timestamp"`
}

// MilestoneEvent is the outbound payload for milestone_created and
// milestone_updated messages.
type MilestoneEvent struct {
	ProjectID   int64     `json:"projectId"`
	MilestoneID int64     `json:"milestoneId"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	UpdatedBy   UserID    `json:"updatedBy"`
	Timestamp   time.Time `json:"timestamp"`
}

// ErrorNotification builds an error notification message for a sender whose
// frame could not be processed. Marshalling a NotificationEvent cannot fail.
func ErrorNotification(message string, now time.Time) Message {
	msg, _ := NewMessage(MessageNotification, NotificationEvent{
		Type:      "error",
		Message:   message,
		Timestamp: now,
	})
	return msg
}

// SuccessNotification builds a success notification message.
func SuccessNotification(message string, now time.Time) Message {
	msg, _ := NewMessage(MessageNotification, NotificationEvent{
		Type:      "success",
		Message:   message,
		Timestamp: now,
	})
	return msg
}
