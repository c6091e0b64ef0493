package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Callers classify failures with errors.Is.
var (
	// ErrDeviceUnavailable marks microphone permission or hardware failures.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrTransport marks remote session create/connect failures. Fatal during open.
	ErrTransport = errors.New("transport error")
	// ErrStateConflict marks an operation attempted in a state that forbids
	// it. Always an ordering bug, never an expected runtime condition.
	ErrStateConflict = errors.New("state conflict")
)

type ServiceKind string

const (
	ServiceTranscription ServiceKind = "transcription"
	ServiceConversation  ServiceKind = "conversation"
	ServiceSpeech        ServiceKind = "speech"
)

// ServiceError wraps a failure or timeout from an external service call.
// These are recovered locally: the turn is dropped and the session returns
// to ready.
type ServiceError struct {
	Kind ServiceKind
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewServiceError(kind ServiceKind, err error) *ServiceError {
	return &ServiceError{Kind: kind, Err: err}
}

// IsServiceError reports whether err is a ServiceError of the given kind.
func IsServiceError(err error, kind ServiceKind) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == kind
}
