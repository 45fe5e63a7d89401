// Package server classifies frame failures into the error kinds reported back
// to clients.
package server

import (
	"errors"
	"strings"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/store"
)

// ErrorKind classifies a failed operation.
type ErrorKind int

const (
	// KindInvalidFrame is a frame that is not valid JSON.
	KindInvalidFrame ErrorKind = iota
	// KindAuth is a missing, invalid or expired credential.
	KindAuth
	// KindValidation is a missing or malformed required field.
	KindValidation
	// KindNotFound is a reference to a room or shape that does not exist.
	KindNotFound
	// KindConflict is an attempt to create a room id that is taken.
	KindConflict
	// KindPersistence is a store failure.
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidFrame:
		return "invalid_frame"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// ProtocolError is an operation failure reported to the issuing client as
// {"error": Message}.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Terminal reports whether the connection must be closed after the error is
// delivered. Only auth failures are terminal.
func (e *ProtocolError) Terminal() bool {
	return e.Kind == KindAuth
}

func newProtocolError(kind ErrorKind, message string, err error) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: message, Err: err}
}

func errInvalidFrame(err error) *ProtocolError {
	return newProtocolError(KindInvalidFrame, "Invalid JSON", err)
}

func errValidation(message string) *ProtocolError {
	return newProtocolError(KindValidation, message, nil)
}

func errNotFound(message string) *ProtocolError {
	return newProtocolError(KindNotFound, message, nil)
}

func errConflict(message string, err error) *ProtocolError {
	return newProtocolError(KindConflict, message, err)
}

func errPersistence(message string, err error) *ProtocolError {
	return newProtocolError(KindPersistence, message, err)
}

// errAuth maps an auth.Gate failure to the message sent before closing.
func errAuth(err error) *ProtocolError {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return newProtocolError(KindAuth, "Missing token", err)
	case errors.Is(err, auth.ErrExpiredToken):
		return newProtocolError(KindAuth, "Token expired", err)
	default:
		return newProtocolError(KindAuth, "Invalid or expired token", err)
	}
}

// storeError maps a store failure. ErrNotFound and ErrConflict get their own
// kinds, anything else is a persistence failure with fallback as the message.
func storeError(err error, notFound, fallback string) *ProtocolError {
	switch {
	case errors.Is(err, store.ErrNotFound) && notFound != "":
		return newProtocolError(KindNotFound, notFound, err)
	case errors.Is(err, store.ErrConflict):
		return errConflict("Room already exists", err)
	default:
		return errPersistence(fallback, err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
