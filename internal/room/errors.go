package room

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/voxelroom/internal/proto"
)

var (
	// ErrRoomFrozen is returned by Freeze when the room already has a
	// frozen export.
	ErrRoomFrozen = errors.New("room is frozen")

	// ErrFreezeInProgress is returned by Freeze while an earlier freeze of
	// the same room is still being written.
	ErrFreezeInProgress = errors.New("freeze in progress")

	// ErrRoomClosed is returned for requests made after the room stopped.
	ErrRoomClosed = errors.New("room closed")
)

// RejectReason identifies why a client frame was refused. The values are
// the wire "reason" strings.
type RejectReason string

const (
	// ReasonMalformed: the frame did not decode or an operation was invalid.
	ReasonMalformed RejectReason = "malformed"

	// ReasonNotIdentified: a write arrived before the handshake.
	ReasonNotIdentified RejectReason = "not_identified"

	// ReasonBatchTooLarge: the batch exceeded the batch cap or the bucket
	// capacity, so it could never be permitted.
	ReasonBatchTooLarge RejectReason = "batch_too_large"

	// ReasonRateLimited: the connection's bucket could not cover the batch.
	ReasonRateLimited RejectReason = "rate_limited"

	// ReasonRoomFrozen: the room is read-only.
	ReasonRoomFrozen RejectReason = "room_frozen"

	// ReasonRoomFreezing: a freeze is being written.
	ReasonRoomFreezing RejectReason = "room_freezing"
)

// RejectError describes a refused client frame.
type RejectError struct {
	Reason RejectReason

	// RetryAfter is the advisory delay for ReasonRateLimited.
	RetryAfter time.Duration

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rejected (%s): %v", e.Reason, e.Err)
	}
	if e.Reason == ReasonRateLimited {
		return fmt.Sprintf("rejected (%s): retry after %s", e.Reason, e.RetryAfter)
	}
	return fmt.Sprintf("rejected (%s)", e.Reason)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Message returns the reject frame sent to the client. Throttling rejects
// always carry a retry hint of at least one millisecond.
func (e *RejectError) Message() proto.Reject {
	msg := proto.Reject{Reason: string(e.Reason)}
	if e.Reason == ReasonRateLimited {
		ms := (e.RetryAfter + time.Millisecond - 1).Milliseconds()
		if ms < 1 {
			ms = 1
		}
		msg.RetryAfterMs = &ms
	}
	return msg
}

// IsRejectError reports whether err is a RejectError with the given reason.
// Uses errors.As to handle wrapped errors.
func IsRejectError(err error, reason RejectReason) bool {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason == reason
	}
	return false
}
