package contract

import (
	"context"
	"reflect"

	"chat-server/domain/event"
)

// EventSink is one live connection's receiving end.
// Consume must respect ctx so a slow or dead connection is dropped with a
// bounded timeout instead of blocking a fan-out. After Close, Consume fails
// with ErrSinkClosed.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close()
}

// IRegistry is the read side of the session registry used by fan-out paths.
type IRegistry interface {
	Lookup(userID string) (EventSink, bool)
	SinksExcept(userID string) []EventSink
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
