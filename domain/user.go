package domain

import "time"

// User is the account record the store keeps.
// The core only ever consumes the ID and presence fields; credentials stay
// at the auth edge.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Status       PresenceStatus
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Group is the membership record. The delivery path reads it as a snapshot
// at send time and never mutates it.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}
