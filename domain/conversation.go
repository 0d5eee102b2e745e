package domain

import (
	"fmt"
	"strings"
)

type ConversationKind string

const (
	KindPrivate ConversationKind = "private"
	KindGroup   ConversationKind = "group"
)

// Conversation is the addressing of a message: a private pair of users or a
// group. Exactly one variant holds. The zero value is invalid; build instances
// through PrivateConversation or GroupConversation so the exclusivity is a
// structural property rather than a convention.
type Conversation struct {
	kind    ConversationKind
	low     string // private: lexicographically smaller peer
	high    string // private: larger peer
	groupID string
}

// PrivateConversation builds the conversation between two users.
// The pair is stored sorted, so (a, b) and (b, a) name the same conversation.
func PrivateConversation(a, b string) Conversation {
	if a > b {
		a, b = b, a
	}
	return Conversation{kind: KindPrivate, low: a, high: b}
}

func GroupConversation(groupID string) Conversation {
	return Conversation{kind: KindGroup, groupID: groupID}
}

func (c Conversation) Kind() ConversationKind { return c.kind }

func (c Conversation) IsPrivate() bool { return c.kind == KindPrivate }

func (c Conversation) IsGroup() bool { return c.kind == KindGroup }

// GroupID returns the group identifier for group conversations.
func (c Conversation) GroupID() (string, bool) {
	return c.groupID, c.kind == KindGroup
}

// Peers returns both participants of a private conversation in sorted order.
func (c Conversation) Peers() (string, string, bool) {
	return c.low, c.high, c.kind == KindPrivate
}

// Other returns the private peer that is not userID.
// Returns false for group conversations or when userID is not a peer.
func (c Conversation) Other(userID string) (string, bool) {
	if c.kind != KindPrivate {
		return "", false
	}
	switch userID {
	case c.low:
		return c.high, true
	case c.high:
		return c.low, true
	}
	return "", false
}

// HasPeer reports whether userID is one of the two private participants.
func (c Conversation) HasPeer(userID string) bool {
	return c.kind == KindPrivate && (c.low == userID || c.high == userID)
}

// Key is the storage identifier of the conversation.
// Private pairs join their sorted peers, groups use their id:
// "p:{low}:{high}" / "g:{groupID}".
func (c Conversation) Key() string {
	if c.kind == KindGroup {
		return "g:" + c.groupID
	}
	return "p:" + c.low + ":" + c.high
}

// ParseConversationKey rebuilds a Conversation from its Key form.
func ParseConversationKey(key string) (Conversation, error) {
	switch {
	case strings.HasPrefix(key, "g:"):
		id := strings.TrimPrefix(key, "g:")
		if id == "" {
			return Conversation{}, fmt.Errorf("empty group id in conversation key %q", key)
		}
		return GroupConversation(id), nil
	case strings.HasPrefix(key, "p:"):
		parts := strings.SplitN(strings.TrimPrefix(key, "p:"), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Conversation{}, fmt.Errorf("malformed private conversation key %q", key)
		}
		return PrivateConversation(parts[0], parts[1]), nil
	}
	return Conversation{}, fmt.Errorf("unknown conversation key %q", key)
}
