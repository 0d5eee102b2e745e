package domain

import "time"

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// PresenceTransition is one visible registry transition for a user.
// Transitions for the same user are emitted in the order they occurred.
type PresenceTransition struct {
	UserID string
	Status PresenceStatus
	At     time.Time
}
