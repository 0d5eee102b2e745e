package errors

import "fmt"

var (
	// ErrUnauthorized: the caller is not entitled to address the target
	// (not a group member, not the message recipient).
	ErrUnauthorized = fmt.Errorf("unauthorized")
	// ErrNotFound: recipient, group, or message does not exist.
	ErrNotFound = fmt.Errorf("not found")
	// ErrPersistence: the store call failed. Fatal to the triggering
	// operation, surfaced to the caller, never retried here.
	ErrPersistence = fmt.Errorf("persistence failure")
	// ErrDelivery: a live target was unreachable at push time. Recovered
	// locally by falling back to the offline queue, never surfaced.
	ErrDelivery = fmt.Errorf("delivery failure")

	ErrSinkClosed = fmt.Errorf("%w: sink closed", ErrDelivery)

	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)
