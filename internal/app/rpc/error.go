package rpc

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes a client can see.
type ErrorKind string

const (
	KindInvalidData ErrorKind = "invalid-data"
	KindNotAllowed  ErrorKind = "not-allowed"
	KindNotFound    ErrorKind = "not-found"
	KindInternal    ErrorKind = "internal"
	KindError       ErrorKind = "error"
)

const internalMessage = "[[error:internal-error]]"

// Error is the only failure shape that crosses the wire.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[Kind] %s [Message] %s", e.Kind, e.Message)
}

func (e *Error) Is(err error) bool {
	var other *Error
	if !errors.As(err, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Message == other.Message
}

// wireError maps any handler failure onto the closed shape. Only the message
// text is kept; wrapping chains and panics values stay in the logs.
func wireError(err error, fallback ErrorKind) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, errPanic) {
		return NewError(KindInternal, internalMessage)
	}
	return NewError(fallback, err.Error())
}

var errPanic = errors.New("handler panicked")
