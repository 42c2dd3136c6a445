package services

import (
	"context"

	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
)

// ScopeAuthorizer decides which realtime scopes a user may subscribe to
type ScopeAuthorizer struct {
	memberships repositories.MembershipRepository
}

func NewScopeAuthorizer(memberships repositories.MembershipRepository) *ScopeAuthorizer {
	return &ScopeAuthorizer{memberships: memberships}
}

// Authorize parses raw and checks that userID can see it: conversation scopes
// need conversation membership, notification scopes must be the user's own,
// and project scopes need an active project membership.
func (a *ScopeAuthorizer) Authorize(ctx context.Context, userID uint, raw string) (realtime.Scope, error) {
	scope, kind, id, err := realtime.ParseScope(raw)
	if err != nil {
		return "", err
	}

	var ok bool
	switch kind {
	case realtime.ScopeConversation:
		ok, err = a.memberships.IsConversationMember(ctx, id, userID)
	case realtime.ScopeUserNotifications:
		ok = id == userID
	case realtime.ScopeProjectMemberships:
		ok, err = a.memberships.IsProjectMember(ctx, userID, id)
	}
	if err != nil {
		return "", persistenceError("authorize scope", err)
	}
	if !ok {
		return "", ErrForbiddenScope
	}
	return scope, nil
}
