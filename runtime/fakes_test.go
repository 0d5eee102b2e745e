package runtime

import (
	"context"
	"sync"
	"testing"

	"chat-server/domain/event"
	"chat-server/errors"

	"github.com/dgraph-io/badger/v4"
)

// fakeSink records everything it consumes. An optional failWith error makes
// every Consume fail, simulating a dead or saturated connection.
type fakeSink struct {
	mu       sync.Mutex
	events   []event.DomainEvent
	closed   bool
	failWith error
}

func newFakeSink() *fakeSink {
	return &fakeSink{}
}

func (s *fakeSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	if s.failWith != nil {
		return s.failWith
	}
	s.events = append(s.events, e)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSink) Events() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSink) EventNames() []string {
	var names []string
	for _, e := range s.Events() {
		names = append(names, e.EventName())
	}
	return names
}

func (s *fakeSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
