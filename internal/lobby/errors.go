package lobby

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable error classification surfaced in command acks.
type ErrorKind string

const (
	ErrNotFound       ErrorKind = "not_found"
	ErrNotAuthorized  ErrorKind = "not_authorized"
	ErrNotYourTurn    ErrorKind = "not_your_turn"
	ErrInvalidAction  ErrorKind = "invalid_action"
	ErrAlreadyInLobby ErrorKind = "already_in_lobby"
	ErrCapacity       ErrorKind = "capacity"
	ErrPhase          ErrorKind = "phase_violation"
	ErrTransient      ErrorKind = "transient"
	ErrInternal       ErrorKind = "internal"
)

// Error carries an ErrorKind alongside a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds a kinded error.
func E(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from err, defaulting to internal.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrInternal
}
