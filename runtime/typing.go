package runtime

import (
	"context"
	"log/slog"
	"time"

	"chat-server/contract"
	"chat-server/domain"
	"chat-server/domain/event"
	"chat-server/repositories"
)

// TypingBroadcaster pushes transient typing signals to live targets.
// Nothing is persisted, queued, or deduplicated; an offline target simply
// sees nothing. Debouncing repeated signals is the caller's concern.
type TypingBroadcaster struct {
	log         *slog.Logger
	registry    contract.IRegistry
	groups      repositories.IGroupRepository
	sinkTimeout time.Duration
}

func NewTypingBroadcaster(log *slog.Logger, registry contract.IRegistry,
	groups repositories.IGroupRepository, sinkTimeout time.Duration) *TypingBroadcaster {
	return &TypingBroadcaster{log: log, registry: registry, groups: groups, sinkTimeout: sinkTimeout}
}

// SetTyping signals that userID started or stopped typing in conv.
// Best effort all the way down: failures are logged and dropped.
func (t *TypingBroadcaster) SetTyping(ctx context.Context, userID string, isTyping bool, conv domain.Conversation) {
	if groupID, isGroup := conv.GroupID(); isGroup {
		members, err := t.groups.Members(groupID)
		if err != nil {
			t.log.Debug("Typing signal dropped, group lookup failed", "group", groupID, "error", err)
			return
		}
		evt := event.Typing{UserID: userID, IsTyping: isTyping, GroupID: groupID}
		var sinks []contract.EventSink
		for _, member := range members {
			if member == userID {
				continue
			}
			if sink, online := t.registry.Lookup(member); online {
				sinks = append(sinks, sink)
			}
		}
		Broadcast(ctx, t.log, sinks, evt, t.sinkTimeout)
		return
	}

	peer, ok := conv.Other(userID)
	if !ok {
		return
	}
	sink, online := t.registry.Lookup(peer)
	if !online {
		return
	}
	evt := event.Typing{UserID: userID, IsTyping: isTyping}
	if err := Deliver(ctx, sink, evt, t.sinkTimeout); err != nil {
		t.log.Debug("Typing signal dropped", "peer", peer, "error", err)
	}
}
