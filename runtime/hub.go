package runtime

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"chat-server/contract"
	"chat-server/domain"
	"chat-server/queue"

	"github.com/google/uuid"
)

const hubLockStripes = 64

// Hub runs the connection lifecycle. Connect and disconnect for one user
// serialize on a striped mutex so two logins racing for the same identity
// resolve to exactly one live session, and so the backlog drain cannot
// interleave with a concurrent supersession.
//
// Order on connect is deliberate: register, close the superseded sink, drain
// the offline backlog into the new session, and only then emit the online
// transition. The user has their backlog before anyone can see them online.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	queue    *queue.OfflineQueue

	drainTimeout time.Duration
	transitions  chan domain.PresenceTransition

	locks [hubLockStripes]sync.Mutex
}

func NewHub(log *slog.Logger, registry *Registry, offline *queue.OfflineQueue,
	drainTimeout time.Duration, transitionBuffer int) *Hub {
	return &Hub{
		log:          log,
		registry:     registry,
		queue:        offline,
		drainTimeout: drainTimeout,
		transitions:  make(chan domain.PresenceTransition, transitionBuffer),
	}
}

// Transitions is the ordered stream of visible presence transitions,
// consumed by the presence worker.
func (h *Hub) Transitions() <-chan domain.PresenceTransition {
	return h.transitions
}

// OnConnect installs a new live session for an authenticated user and
// returns it. The caller owns the sink until this returns.
func (h *Hub) OnConnect(ctx context.Context, userID string, sink contract.EventSink) *Session {
	h.lockFor(userID).Lock()
	defer h.lockFor(userID).Unlock()

	session := NewSession(userID, sink)
	superseded := h.registry.Register(session)
	if superseded != nil {
		// Last writer wins: the prior connection is closed, not kept as a
		// second device. Its late disconnect will miss the conditional
		// unregister and emit nothing.
		superseded.Sink.Close()
		h.log.Info("Session superseded", "user", userID, "old", superseded.ID, "new", session.ID)
	}

	drainCtx, cancel := context.WithTimeout(ctx, h.drainTimeout)
	delivered, err := h.queue.Drain(drainCtx, userID, sink)
	cancel()
	if err != nil {
		h.log.Error("Backlog drain failed", "user", userID, "error", err)
	} else if delivered > 0 {
		h.log.Info("Backlog delivered on connect", "user", userID, "messages", delivered)
	}

	h.emit(domain.PresenceTransition{UserID: userID, Status: domain.StatusOnline, At: time.Now().UTC()})
	h.log.Info("User connected", "user", userID, "session", session.ID)
	return session
}

// OnDisconnect removes the session if it is still the live one. The entry is
// gone from the registry before this returns, so no further message can be
// routed to the dead handle; a push racing the close fails at the sink and
// falls back to the offline queue.
func (h *Hub) OnDisconnect(userID string, sessionID uuid.UUID) {
	h.lockFor(userID).Lock()
	defer h.lockFor(userID).Unlock()

	if !h.registry.Unregister(userID, sessionID) {
		h.log.Debug("Ignoring disconnect of superseded session", "user", userID, "session", sessionID)
		return
	}
	h.emit(domain.PresenceTransition{UserID: userID, Status: domain.StatusOffline, At: time.Now().UTC()})
	h.log.Info("User disconnected", "user", userID, "session", sessionID)
}

// emit hands a transition to the presence worker. The send blocks rather
// than drops: every transition must be visible, in order.
func (h *Hub) emit(t domain.PresenceTransition) {
	h.transitions <- t
}

func (h *Hub) lockFor(userID string) *sync.Mutex {
	f := fnv.New32a()
	f.Write([]byte(userID))
	return &h.locks[f.Sum32()%hubLockStripes]
}
