package roomstate

import (
	"errors"
	"fmt"
)

var (
	ErrNoSnapshot     = errors.New("no room snapshot")
	ErrUnknownUser    = errors.New("unknown user")
	ErrDuplicateUser  = errors.New("user already present")
	ErrSelfEcho       = errors.New("confirmation of own action")
	ErrStaleJoin      = errors.New("join confirmation for another room")
	ErrUnhandledEvent = errors.New("unhandled event")
	ErrNotJoined      = errors.New("no confirmed identity in room")
	ErrWrongPhase     = errors.New("event does not apply in the current phase")

	// ErrRemovedFromRoom is terminal: the local session has been discarded.
	ErrRemovedFromRoom = errors.New("removed from room")
)

// RemovedMessage is surfaced to the user after being kicked.
const RemovedMessage = "You have been removed from the room by the facilitator"

// SkipError describes an event that could not apply and was treated as a no-op.
type SkipError struct {
	Event  string
	UserID string
	Err    error
}

func (e *SkipError) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("skipped %s for %s: %v", e.Event, e.UserID, e.Err)
	}
	return fmt.Sprintf("skipped %s: %v", e.Event, e.Err)
}

func (e *SkipError) Unwrap() error { return e.Err }

// IsSkip reports whether err is a no-op skip rather than a real failure.
func IsSkip(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}
