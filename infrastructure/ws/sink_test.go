package ws

import (
	"context"
	"testing"
	"time"

	"chat-server/domain/event"
	"chat-server/errors"

	"github.com/stretchr/testify/require"
)

func TestSink_ConsumeDeliversToEventsChannel(t *testing.T) {
	req := require.New(t)
	sink := NewSink(4)

	err := sink.Consume(context.Background(), event.Connected{UserID: "alice"})
	req.NoError(err)

	select {
	case e := <-sink.Events():
		req.Equal("connected", e.EventName())
	default:
		req.Fail("expected a buffered event")
	}
}

func TestSink_ConsumeAfterCloseFailsWithSinkClosed(t *testing.T) {
	req := require.New(t)
	sink := NewSink(4)

	sink.Close()

	err := sink.Consume(context.Background(), event.Connected{UserID: "alice"})
	req.ErrorIs(err, errors.ErrSinkClosed)
	req.ErrorIs(err, errors.ErrDelivery)
}

func TestSink_FullBufferRespectsContextDeadline(t *testing.T) {
	req := require.New(t)
	sink := NewSink(1)

	// Given a full buffer with no reader
	req.NoError(sink.Consume(context.Background(), event.Connected{UserID: "alice"}))

	// When another push arrives under a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sink.Consume(ctx, event.Connected{UserID: "alice"})

	// Then the push fails with the deadline instead of blocking forever
	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestSink_CloseUnblocksPendingConsume(t *testing.T) {
	req := require.New(t)
	sink := NewSink(1)
	req.NoError(sink.Consume(context.Background(), event.Connected{UserID: "alice"}))

	done := make(chan error, 1)
	go func() {
		done <- sink.Consume(context.Background(), event.Connected{UserID: "alice"})
	}()

	time.Sleep(20 * time.Millisecond)
	sink.Close()

	select {
	case err := <-done:
		req.ErrorIs(err, errors.ErrSinkClosed)
	case <-time.After(time.Second):
		req.Fail("Consume should have been unblocked by Close")
	}
}

func TestSink_CloseIsIdempotent(t *testing.T) {
	sink := NewSink(1)
	sink.Close()
	sink.Close()
}
