package models

import "time"

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Conversation is a direct (two members) or group chat scoped to one project.
type Conversation struct {
	ID        uint                 `json:"id" gorm:"primaryKey"`
	Kind      string               `json:"kind" gorm:"size:10;not null;index:idx_conversation_project_kind"`
	ProjectID uint                 `json:"project_id" gorm:"not null;index:idx_conversation_project_kind"`
	Name      string               `json:"name,omitempty"`
	CreatedBy uint                 `json:"created_by"`
	CreatedAt time.Time            `json:"created_at" gorm:"index"`
	Members   []ConversationMember `json:"members,omitempty" gorm:"foreignKey:ConversationID"`
}

// ConversationMember maps a user to a conversation
type ConversationMember struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;uniqueIndex:idx_conversation_member"`
	UserID         uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_conversation_member;index"`
	JoinedAt       time.Time `json:"joined_at" gorm:"autoCreateTime"`
}

// ConversationSummary is a conversation list entry with resolved members and
// the latest message, if any.
type ConversationSummary struct {
	Conversation
	Participants []UserCompact `json:"participants"`
	LastMessage  *Message      `json:"last_message,omitempty"`
}

// CreateDirectRequest defines the request body for opening a direct conversation
type CreateDirectRequest struct {
	RecipientID uint `json:"recipient_id" validate:"required"`
}

// CreateGroupRequest defines the request body for creating a group conversation
type CreateGroupRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	MemberIDs []uint `json:"member_ids" validate:"required,min=2,dive,required"`
}
