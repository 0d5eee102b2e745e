// Package event defines the events pushed to connected sessions.
package event

import (
	"time"

	"chat-server/domain"

	"github.com/google/uuid"
)

// DomainEvent is anything a live session can receive.
// EventName is the wire-level event identifier the transport exposes to
// clients.
type DomainEvent interface {
	EventName() string
}

// Connected confirms a successful handshake to the new session itself.
type Connected struct {
	UserID string `json:"userId"`
}

func (Connected) EventName() string { return "connected" }

// PrivateMessage delivers a private message to its recipient,
// live or via the offline backlog.
type PrivateMessage struct {
	Message domain.Message `json:"message"`
}

func (PrivateMessage) EventName() string { return "newPrivateMessage" }

// GroupMessage delivers a group message to a member.
type GroupMessage struct {
	GroupID string         `json:"groupId"`
	Message domain.Message `json:"message"`
}

func (GroupMessage) EventName() string { return "newGroupMessage" }

// PresenceChanged announces another user's online/offline transition.
type PresenceChanged struct {
	UserID string                `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
	At     time.Time             `json:"at"`
}

func (e PresenceChanged) EventName() string {
	if e.Status == domain.StatusOnline {
		return "userOnline"
	}
	return "userOffline"
}

// MessageRead notifies that readerID acknowledged a message.
type MessageRead struct {
	MessageID uuid.UUID `json:"messageId"`
	ReaderID  string    `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

func (MessageRead) EventName() string { return "messageRead" }

// Typing is the transient typing signal. Never persisted, never queued.
type Typing struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
	GroupID  string `json:"groupId,omitempty"`
}

func (Typing) EventName() string { return "userTyping" }

// NewMessageEvent wraps a message in the event variant matching its
// conversation kind.
func NewMessageEvent(msg domain.Message) DomainEvent {
	if groupID, ok := msg.Conversation.GroupID(); ok {
		return GroupMessage{GroupID: groupID, Message: msg}
	}
	return PrivateMessage{Message: msg}
}
