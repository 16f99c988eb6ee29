package services

import "errors"

var (
	ErrPollNotFound             = errors.New("poll not found")
	ErrPollInactive             = errors.New("poll is not accepting mutations")
	ErrCannotVote               = errors.New("participant is not allowed to vote")
	ErrSelfDelegation           = errors.New("cannot delegate a vote to yourself")
	ErrDelegateAlreadyDelegated = errors.New("delegate has already delegated their own vote")
	ErrNotAllowed               = errors.New("operation is not allowed")

	// ErrInvalidRequest wraps validation failures whose message is safe to
	// show the client.
	ErrInvalidRequest = errors.New("invalid request")
)

// ErrorCode maps a service error to the stable code surfaced to clients.
// Anything outside the taxonomy is reported as INTERNAL rather than leaking
// store internals.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrPollNotFound):
		return "POLL_NOT_FOUND"
	case errors.Is(err, ErrPollInactive):
		return "POLL_INACTIVE"
	case errors.Is(err, ErrCannotVote):
		return "CANNOT_VOTE"
	case errors.Is(err, ErrSelfDelegation):
		return "SELF_DELEGATION"
	case errors.Is(err, ErrDelegateAlreadyDelegated):
		return "DELEGATE_ALREADY_DELEGATED"
	case errors.Is(err, ErrNotAllowed):
		return "NOT_ALLOWED"
	case errors.Is(err, ErrInvalidRequest):
		return "BAD_REQUEST"
	default:
		return "INTERNAL"
	}
}
