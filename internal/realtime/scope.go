package realtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Scope is a subscription filter key. Every event is published to exactly
// one scope.
type Scope string

const (
	scopeConversation = "conversation"
	scopeUser         = "user"
	scopeProject      = "project"
)

var ErrInvalidScope = errors.New("realtime: invalid scope")

// ScopeKind identifies which family a scope belongs to
type ScopeKind int

const (
	ScopeInvalid ScopeKind = iota
	ScopeConversation
	ScopeUserNotifications
	ScopeProjectMemberships
)

// ConversationScope carries message inserts of one conversation
func ConversationScope(conversationID uint) Scope {
	return Scope(fmt.Sprintf("%s:%d", scopeConversation, conversationID))
}

// UserNotificationsScope carries notification inserts for one recipient
func UserNotificationsScope(userID uint) Scope {
	return Scope(fmt.Sprintf("%s:%d:notifications", scopeUser, userID))
}

// ProjectMembershipsScope carries conversation and project membership changes
func ProjectMembershipsScope(projectID uint) Scope {
	return Scope(fmt.Sprintf("%s:%d:memberships", scopeProject, projectID))
}

// ParseScope validates s and returns its kind and numeric id
func ParseScope(s string) (Scope, ScopeKind, uint, error) {
	parts := strings.Split(s, ":")
	invalid := fmt.Errorf("%w %q", ErrInvalidScope, s)

	var kind ScopeKind
	switch {
	case len(parts) == 2 && parts[0] == scopeConversation:
		kind = ScopeConversation
	case len(parts) == 3 && parts[0] == scopeUser && parts[2] == "notifications":
		kind = ScopeUserNotifications
	case len(parts) == 3 && parts[0] == scopeProject && parts[2] == "memberships":
		kind = ScopeProjectMemberships
	default:
		return "", ScopeInvalid, 0, invalid
	}

	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || id == 0 {
		return "", ScopeInvalid, 0, invalid
	}
	return Scope(s), kind, uint(id), nil
}

func (s Scope) String() string { return string(s) }
