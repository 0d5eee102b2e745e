package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-server/domain"
	"chat-server/domain/event"
	"chat-server/errors"
	"chat-server/queue"
	"chat-server/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Router decides, per target, whether an outbound message is pushed to a
// live session or parked in the offline queue.
//
// Durability comes first: the message is saved before any fan-out, and the
// ack to the sender depends only on that save. No registry or queue lock is
// held while the store call is in flight. Live-push failures are recovered
// by enqueueing; they are never an error the sender sees.
type Router struct {
	log      *slog.Logger
	registry *Registry
	queue    *queue.OfflineQueue
	messages repositories.IMessageRepository
	groups   repositories.IGroupRepository
	users    repositories.IUserRepository

	sinkTimeout time.Duration
	clock       senderClock
}

func NewRouter(log *slog.Logger, registry *Registry, offline *queue.OfflineQueue,
	messages repositories.IMessageRepository, groups repositories.IGroupRepository,
	users repositories.IUserRepository, sinkTimeout time.Duration) *Router {
	return &Router{
		log:         log,
		registry:    registry,
		queue:       offline,
		messages:    messages,
		groups:      groups,
		users:       users,
		sinkTimeout: sinkTimeout,
		clock:       senderClock{last: make(map[string]time.Time)},
	}
}

// SendPrivate records and routes a message to a single recipient.
// The returned message is the sender's ack: id and timestamp are assigned
// whether or not the recipient was reachable.
func (r *Router) SendPrivate(ctx context.Context, senderID, recipientID string,
	content string, msgType domain.MessageType) (domain.Message, error) {
	exists, err := r.users.Exists(recipientID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	if !exists {
		return domain.Message{}, fmt.Errorf("%w: recipient %s", errors.ErrNotFound, recipientID)
	}

	msg := domain.Message{
		ID:           uuid.New(),
		SenderID:     senderID,
		Conversation: domain.PrivateConversation(senderID, recipientID),
		Content:      content,
		Type:         msgType,
		CreatedAt:    r.clock.next(senderID),
	}
	if err := r.messages.SaveMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	r.dispatch(ctx, msg, []string{recipientID})
	return msg, nil
}

// SendGroup records and routes a message to every group member except the
// sender. The sender must be a member of the snapshot fetched here; the
// snapshot also fixes the fan-out target set for this send. A group whose
// only member is the sender produces zero fan-out attempts and still acks.
func (r *Router) SendGroup(ctx context.Context, senderID, groupID string,
	content string, msgType domain.MessageType) (domain.Message, error) {
	members, err := r.groups.Members(groupID)
	if err == errors.ErrNotFound {
		return domain.Message{}, fmt.Errorf("%w: group %s", errors.ErrNotFound, groupID)
	}
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	if !lo.Contains(members, senderID) {
		return domain.Message{}, fmt.Errorf("%w: %s is not a member of group %s", errors.ErrUnauthorized, senderID, groupID)
	}

	createdAt := r.clock.next(senderID)
	msg := domain.Message{
		ID:           uuid.New(),
		SenderID:     senderID,
		Conversation: domain.GroupConversation(groupID),
		Content:      content,
		Type:         msgType,
		CreatedAt:    createdAt,
		// The sender has trivially seen their own message.
		ReadBy: []domain.ReadMark{{UserID: senderID, ReadAt: createdAt}},
	}
	if err := r.messages.SaveMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	targets := lo.Without(members, senderID)
	r.dispatch(ctx, msg, targets)
	return msg, nil
}

// dispatch makes one delivery-or-queue decision per target. Each target is
// isolated: a dead handle or full sink falls back to the queue without
// touching the others. The message is already durable when this runs.
func (r *Router) dispatch(ctx context.Context, msg domain.Message, targets []string) {
	evt := event.NewMessageEvent(msg)
	for _, target := range targets {
		sink, online := r.registry.Lookup(target)
		if online {
			if err := Deliver(ctx, sink, evt, r.sinkTimeout); err == nil {
				continue
			} else {
				// Delivery to a closing handle counts as a delivery failure;
				// the queue keeps the message from being lost on the race.
				r.log.Warn("Live push failed, queueing for offline delivery",
					"target", target, "message", msg.ID, "error", err)
			}
		}
		if err := r.queue.Enqueue(target, msg); err != nil {
			r.log.Error("Offline enqueue failed; message remains in history only",
				"target", target, "message", msg.ID, "error", err)
		}
	}
}

// senderClock issues non-decreasing timestamps per sender so any one
// recipient observes a sender's messages in creation order even when two
// sends land on the same clock reading.
type senderClock struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func (c *senderClock) next(senderID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if last, ok := c.last[senderID]; ok && !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	c.last[senderID] = now
	return now
}
