package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a session failed.
type Kind int

const (
	KindTransportConnect Kind = iota + 1
	KindParticipantTimeout
	KindModelOpen
	KindStream
	KindDisconnected
	KindExtraction
	KindDispatch
	KindCancelled
	KindInternal
)

var kindNames = map[Kind]string{
	KindTransportConnect:   "TransportConnectError",
	KindParticipantTimeout: "ParticipantTimeout",
	KindModelOpen:          "ModelOpenError",
	KindStream:             "StreamError",
	KindDisconnected:       "Disconnected",
	KindExtraction:         "ExtractionError",
	KindDispatch:           "DispatchError",
	KindCancelled:          "Cancelled",
	KindInternal:           "InternalError",
}

// String returns the kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrTransportConnect   = errors.New("session: transport connect failed")
	ErrParticipantTimeout = errors.New("session: no participant joined")
	ErrModelOpen          = errors.New("session: model session open failed")
	ErrStream             = errors.New("session: model stream failed")
	ErrDisconnected       = errors.New("session: room disconnected")
	ErrExtraction         = errors.New("session: order extraction failed")
	ErrDispatch           = errors.New("session: order dispatch failed")
	ErrCancelled          = errors.New("session: cancelled")
	ErrIllegalTransition  = errors.New("session: illegal phase transition")
)

var kindSentinels = map[Kind]error{
	KindTransportConnect:   ErrTransportConnect,
	KindParticipantTimeout: ErrParticipantTimeout,
	KindModelOpen:          ErrModelOpen,
	KindStream:             ErrStream,
	KindDisconnected:       ErrDisconnected,
	KindExtraction:         ErrExtraction,
	KindDispatch:           ErrDispatch,
	KindCancelled:          ErrCancelled,
	KindInternal:           ErrIllegalTransition,
}

// Error is a terminal session error.
type Error struct {
	Kind      Kind
	Phase     Phase
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session %s: %s in %s: %v", e.SessionID, e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("session %s: %s in %s", e.SessionID, e.Kind, e.Phase)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the Kind of err, or 0 when err is not a session error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
