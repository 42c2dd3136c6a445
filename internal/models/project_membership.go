package models

import "time"

const (
	MembershipPending = "pending"
	MembershipActive  = "active"
)

// ProjectMembership links a user to a project. Rows start pending when an
// invite is sent and become active once the invitee accepts.
type ProjectMembership struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_membership_user_project"`
	ProjectID uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_membership_user_project;index"`
	Status    string    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Role      string    `json:"role" gorm:"size:20"`
	InvitedBy uint      `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InviteRequest defines the request body for inviting a user to a project
type InviteRequest struct {
	RecipientID uint   `json:"recipient_id" validate:"required"`
	Message     string `json:"message" validate:"omitempty,max=500"`
}
