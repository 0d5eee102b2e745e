package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-server/domain"
	"chat-server/domain/event"
	"chat-server/repositories"
	"chat-server/runtime"
)

// PresenceWorker turns the hub's ordered transition stream into stored user
// status and broadcast notifications. It is the single consumer of the
// stream, which is what preserves per-user ordering: transitions for one user
// reach every observer in the order the hub emitted them.
type PresenceWorker struct {
	log         *slog.Logger
	hub         *runtime.Hub
	registry    *runtime.Registry
	users       repositories.IUserRepository
	sinkTimeout time.Duration
}

func NewPresenceWorker(log *slog.Logger, hub *runtime.Hub, registry *runtime.Registry,
	users repositories.IUserRepository, sinkTimeout time.Duration) *PresenceWorker {
	return &PresenceWorker{log: log, hub: hub, registry: registry, users: users, sinkTimeout: sinkTimeout}
}

// Run consumes transitions until the context is canceled. Each transition is
// persisted to the user record (best effort) and broadcast to every live
// session except the transitioning user's own. A user who reconnects before
// their offline transition was observed simply sees offline followed by
// online, in that order.
func (w *PresenceWorker) Run(ctx context.Context) error {
	w.log.Info("Starting presence worker")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-w.hub.Transitions():
			w.handle(ctx, t)
		}
	}
}

func (w *PresenceWorker) handle(ctx context.Context, t domain.PresenceTransition) {
	if err := w.users.UpdateStatus(t.UserID, t.Status, t.At); err != nil {
		w.log.Error("Failed to persist presence status", "user", t.UserID, "status", t.Status, "error", err)
	}

	evt := event.PresenceChanged{UserID: t.UserID, Status: t.Status, At: t.At}
	sinks := w.registry.SinksExcept(t.UserID)
	runtime.Broadcast(ctx, w.log, sinks, evt, w.sinkTimeout)
	w.log.Debug("Presence broadcast", "user", t.UserID, "status", t.Status, "targets", len(sinks))
}
