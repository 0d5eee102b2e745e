package runtime

import (
	"context"
	"log/slog"
	"time"

	"chat-server/contract"
	"chat-server/domain/event"
)

// Deliver pushes one event to one sink under a bounded timeout. A slow or
// dead connection times out and reports failure instead of stalling the
// caller.
func Deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent, timeout time.Duration) error {
	pushCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sink.Consume(pushCtx, e)
}

// Broadcast fans an event out to each sink independently. A failed target is
// logged and skipped; it never aborts delivery to the remaining targets.
func Broadcast(ctx context.Context, log *slog.Logger, sinks []contract.EventSink, e event.DomainEvent, timeout time.Duration) {
	for _, sink := range sinks {
		if err := Deliver(ctx, sink, e, timeout); err != nil {
			log.Debug("Fan-out target unreachable, skipping", "event", e.EventName(), "error", err)
		}
	}
}
