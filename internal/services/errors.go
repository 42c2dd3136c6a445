package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParticipant   = errors.New("participant is not an active project member")
	ErrInvalidGroup         = errors.New("group needs a name and at least two distinct members")
	ErrEmptyContent         = errors.New("message content is empty")
	ErrNotAMember           = errors.New("user is not a member of the conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidPayload       = errors.New("invalid notification payload")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAlreadyMember        = errors.New("user is already a project member")
	ErrAlreadyInvited       = errors.New("user already has a pending invite")
	ErrPersistenceFailure   = errors.New("persistence failure")
	ErrForbiddenScope       = errors.New("scope is not visible to this user")

	// ErrNothingToAccept and ErrNothingToDecline report an invite that was
	// already resolved; callers treat them as "already handled".
	ErrNothingToAccept  = errors.New("no pending invite to accept")
	ErrNothingToDecline = errors.New("no pending invite to decline")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistenceFailure, op, err)
}

// IsAlreadyHandled reports whether err is a benign idempotency outcome
func IsAlreadyHandled(err error) bool {
	return errors.Is(err, ErrNothingToAccept) || errors.Is(err, ErrNothingToDecline)
}
