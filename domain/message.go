// Package domain contains the core concepts of the messaging system.
// Messages are immutable once delivered, except for edits and the
// append-only readBy set.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// ReadMark records that one user saw the message.
type ReadMark struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a chat message addressed to a private peer or a group.
type Message struct {
	ID           uuid.UUID    `json:"id"`
	SenderID     string       `json:"senderId"`
	Conversation Conversation `json:"-"`
	Content      string       `json:"content"`
	Type         MessageType  `json:"type"`
	CreatedAt    time.Time    `json:"createdAt"`
	EditedAt     *time.Time   `json:"editedAt,omitempty"`
	ReadBy       []ReadMark   `json:"readBy"`
}

// HasRead reports whether userID already acknowledged the message.
func (m Message) HasRead(userID string) bool {
	for _, mark := range m.ReadBy {
		if mark.UserID == userID {
			return true
		}
	}
	return false
}
