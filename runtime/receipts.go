package runtime

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"chat-server/contract"
	"chat-server/domain"
	"chat-server/domain/event"
	"chat-server/errors"
	"chat-server/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const receiptLockStripes = 64

// ReceiptTracker records which users have seen which message and notifies
// interested live sessions on the first acknowledgement only.
type ReceiptTracker struct {
	log      *slog.Logger
	registry contract.IRegistry
	messages repositories.IMessageRepository
	groups   repositories.IGroupRepository

	sinkTimeout time.Duration

	// Striped per-message locks make check-append-notify atomic, so two
	// racing acknowledgements for one message cannot both notify.
	locks [receiptLockStripes]sync.Mutex
}

func NewReceiptTracker(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageRepository, groups repositories.IGroupRepository,
	sinkTimeout time.Duration) *ReceiptTracker {
	return &ReceiptTracker{
		log:         log,
		registry:    registry,
		messages:    messages,
		groups:      groups,
		sinkTimeout: sinkTimeout,
	}
}

// MarkRead acknowledges a message for readerID.
//
// Idempotent: a repeat acknowledgement reports alreadyRead=true and emits no
// notification. Only the private recipient, or a group member other than the
// sender, may acknowledge; anyone else gets Unauthorized.
//
// Notification on first acknowledgement: the sender's live session for a
// private message (silently skipped when offline, receipts are never
// queued), every other live group member for a group message.
func (t *ReceiptTracker) MarkRead(ctx context.Context, messageID uuid.UUID, readerID string) (bool, error) {
	t.lockFor(messageID).Lock()
	defer t.lockFor(messageID).Unlock()

	msg, err := t.messages.GetMessage(messageID)
	if err == errors.ErrNotFound {
		return false, fmt.Errorf("%w: message %s", errors.ErrNotFound, messageID)
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	var members []string
	if groupID, isGroup := msg.Conversation.GroupID(); isGroup {
		members, err = t.groups.Members(groupID)
		if err != nil {
			return false, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
		}
		if readerID == msg.SenderID || !lo.Contains(members, readerID) {
			return false, fmt.Errorf("%w: %s may not acknowledge message %s", errors.ErrUnauthorized, readerID, messageID)
		}
	} else {
		recipient, ok := msg.Conversation.Other(msg.SenderID)
		if !ok || readerID != recipient {
			return false, fmt.Errorf("%w: %s is not the recipient of message %s", errors.ErrUnauthorized, readerID, messageID)
		}
	}

	if msg.HasRead(readerID) {
		return true, nil
	}

	mark := domain.ReadMark{UserID: readerID, ReadAt: time.Now().UTC()}
	if _, err := t.messages.AppendRead(messageID, mark); err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	evt := event.MessageRead{MessageID: messageID, ReaderID: readerID, ReadAt: mark.ReadAt}
	if members != nil {
		// Group read state is commonly visible: everyone but the reader.
		var sinks []contract.EventSink
		for _, member := range members {
			if member == readerID {
				continue
			}
			if sink, online := t.registry.Lookup(member); online {
				sinks = append(sinks, sink)
			}
		}
		Broadcast(ctx, t.log, sinks, evt, t.sinkTimeout)
	} else if sink, online := t.registry.Lookup(msg.SenderID); online {
		if err := Deliver(ctx, sink, evt, t.sinkTimeout); err != nil {
			t.log.Debug("Read receipt push failed", "sender", msg.SenderID, "message", messageID, "error", err)
		}
	}
	return false, nil
}

func (t *ReceiptTracker) lockFor(messageID uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(messageID[:])
	return &t.locks[h.Sum32()%receiptLockStripes]
}
