// Package ws is the websocket transport: it upgrades HTTP connections,
// authenticates them, and bridges client frames to the chat service.
package ws

import (
	"context"
	"sync"

	"chat-server/domain/event"
	"chat-server/errors"
)

// Sink is the channel-backed receiving end of one websocket connection.
// The runtime pushes events in through Consume; the connection's write pump
// reads them from Events and serializes them onto the wire.
type Sink struct {
	events chan event.DomainEvent
	closed chan struct{}
	once   sync.Once
}

func NewSink(bufferSize int) *Sink {
	return &Sink{
		events: make(chan event.DomainEvent, bufferSize),
		closed: make(chan struct{}),
	}
}

// Consume hands an event to the connection. It fails with ErrSinkClosed once
// the connection is torn down, and with the ctx error when the buffer stays
// full past the caller's deadline. Either failure tells the caller to fall
// back (queue the message, skip the notification) instead of blocking.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.closed:
		return errors.ErrSinkClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	case <-s.closed:
		return errors.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is idempotent and unblocks any pending Consume.
func (s *Sink) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}

// Events is the write pump's end of the sink.
func (s *Sink) Events() <-chan event.DomainEvent {
	return s.events
}

// Closed signals connection teardown to the write pump.
func (s *Sink) Closed() <-chan struct{} {
	return s.closed
}
