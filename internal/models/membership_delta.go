package models

const (
	DeltaConversationCreated = "conversation_created"
	DeltaMemberInvited       = "member_invited"
	DeltaMemberActivated     = "member_activated"
	DeltaMemberDeclined      = "member_declined"
)

// MembershipDelta is published on a project's membership scope whenever the
// set of conversation or project members changes.
type MembershipDelta struct {
	ID             string `json:"id"`
	Change         string `json:"change"`
	ProjectID      uint   `json:"project_id"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	UserIDs        []uint `json:"user_ids"`
}
