package relay

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidCredential is returned when a bot credential is missing or unusable
var ErrInvalidCredential = errors.New("invalid bot credential")

// ErrAuthRejected is returned when an incoming webhook fails authentication
var ErrAuthRejected = errors.New("webhook authentication rejected")

// CommandFailedError is returned when the backend could not carry out a command
type CommandFailedError struct {
	Kind  CommandKind
	Cause error
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("%s command failed: %s", e.Kind, e.Cause)
}

func (e *CommandFailedError) Unwrap() error { return e.Cause }

// NewCommandFailedError wraps the passed in cause, adding context with a message
func NewCommandFailedError(kind CommandKind, cause error, msg string) *CommandFailedError {
	return &CommandFailedError{Kind: kind, Cause: errors.Wrap(cause, msg)}
}

// MalformedEventError is returned when a webhook body can't be understood
type MalformedEventError struct {
	Event string
	Cause error
}

func (e *MalformedEventError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("malformed event: %s", e.Cause)
	}
	return fmt.Sprintf("malformed %s event: %s", e.Event, e.Cause)
}

func (e *MalformedEventError) Unwrap() error { return e.Cause }

// MediaDecodeFailedError is returned when media attached to an event could not be downloaded or decrypted
type MediaDecodeFailedError struct {
	MessageID string
	Cause     error
}

func (e *MediaDecodeFailedError) Error() string {
	return fmt.Sprintf("unable to decode media for message %s: %s", e.MessageID, e.Cause)
}

func (e *MediaDecodeFailedError) Unwrap() error { return e.Cause }

// BatchError is returned when a batch stops at the first failing item
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch item %d: %s", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// InvalidCommandError is returned when a command can't be built or fails validation, nothing was sent
type InvalidCommandError struct {
	Cause error
}

func (e *InvalidCommandError) Error() string { return e.Cause.Error() }

func (e *InvalidCommandError) Unwrap() error { return e.Cause }
