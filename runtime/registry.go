// Package runtime owns the real-time core: session registry, connection
// lifecycle, delivery routing, read receipts, and typing signals.
package runtime

import (
	"hash/fnv"
	"sync"
	"time"

	"chat-server/contract"

	"github.com/google/uuid"
)

const shardCount = 32

// Session is one live connection. At most one exists per user; a second
// login supersedes the first.
type Session struct {
	ID          uuid.UUID
	UserID      string
	Sink        contract.EventSink
	ConnectedAt time.Time
}

func NewSession(userID string, sink contract.EventSink) *Session {
	return &Session{
		ID:          uuid.New(),
		UserID:      userID,
		Sink:        sink,
		ConnectedAt: time.Now().UTC(),
	}
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Registry maps a user to their single live session. State is sharded by
// user hash so lookups on the send hot path never contend on a global lock;
// operations on different users proceed independently.
type Registry struct {
	shards [shardCount]*shard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register installs the session as the user's live connection and returns
// the superseded one, if any, so the caller can close it. Replace-and-return
// is atomic: two live sessions for one user can never coexist.
func (r *Registry) Register(s *Session) *Session {
	sh := r.shardFor(s.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.sessions[s.UserID]
	sh.sessions[s.UserID] = s
	return old
}

// Unregister removes the user's session only when it still is sessionID.
// A superseded connection's late disconnect must not evict its successor.
func (r *Registry) Unregister(userID string, sessionID uuid.UUID) bool {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	current, ok := sh.sessions[userID]
	if !ok || current.ID != sessionID {
		return false
	}
	delete(sh.sessions, userID)
	return true
}

// Lookup is the hot path: called once per target on every outbound message.
func (r *Registry) Lookup(userID string) (contract.EventSink, bool) {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.Sink, true
}

// SinksExcept snapshots every live sink except userID's, for broadcasts.
func (r *Registry) SinksExcept(userID string) []contract.EventSink {
	var sinks []contract.EventSink
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, s := range sh.sessions {
			if id != userID {
				sinks = append(sinks, s.Sink)
			}
		}
		sh.mu.RUnlock()
	}
	return sinks
}

// Len counts live sessions across all shards.
func (r *Registry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}
