package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedWorker struct {
	calls int32
	run   func(ctx context.Context, call int32) error
}

func (w *scriptedWorker) Run(ctx context.Context) error {
	call := atomic.AddInt32(&w.calls, 1)
	return w.run(ctx, call)
}

func (w *scriptedWorker) Calls() int32 {
	return atomic.LoadInt32(&w.calls)
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &scriptedWorker{run: func(ctx context.Context, call int32) error {
		panic("boom")
	}}

	sup := NewSupervisor(log)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(worker.Calls(), int32(2))
}

func TestSupervisor_RestartOnError(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &scriptedWorker{run: func(ctx context.Context, call int32) error {
		if call == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// Then the worker was restarted once and finished cleanly
		req.Equal(int32(2), worker.Calls())
	case <-time.After(2 * time.Second):
		req.Fail("Supervisor should have stopped after the worker succeeded")
	}
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &scriptedWorker{run: func(ctx context.Context, call int32) error {
		return nil
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		req.Equal(int32(1), worker.Calls())
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	log := slog.Default()

	worker := &scriptedWorker{run: func(ctx context.Context, call int32) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	// Give the worker time to start, then stop the supervisor
	time.Sleep(50 * time.Millisecond)
	sup.Stop()

	select {
	case <-done:
		req.Equal(int32(1), worker.Calls())
	case <-time.After(time.Second):
		req.Fail("Supervisor should have stopped after Stop")
	}
}
