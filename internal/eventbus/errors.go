package eventbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPayload marks event data that cannot be turned into a document.
	ErrInvalidPayload = errors.New("invalid event payload")
	// ErrUnknownEvent is returned by Dispatch for names with no registered function.
	ErrUnknownEvent = errors.New("no function registered for event")
)

// HandlerError tells the caller whether redelivering the event can succeed.
type HandlerError struct {
	Err       error
	Retryable bool
}

func (e *HandlerError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("retryable: %v", e.Err)
	}
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Permanent wraps err as a failure that redelivery will not fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Err: err}
}

// Retryable wraps err as a transient failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Err: err, Retryable: true}
}

// IsRetryable reports whether err should lead to redelivery. Errors that
// were not classified are treated as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var he *HandlerError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return true
}

func invalid(format string, args ...interface{}) error {
	return Permanent(fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidPayload}, args...)...))
}
