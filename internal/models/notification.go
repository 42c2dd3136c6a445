package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationProjectInvite  = "project_invite"
	NotificationTaskAssignment = "task_assignment"
)

// PayloadProjectKey is the payload entry naming the target project
const PayloadProjectKey = "project_id"

// Notification represents a user notification (PostgreSQL)
type Notification struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	Type        string            `json:"type" gorm:"size:30;index"`
	SenderID    uint              `json:"sender_id" gorm:"index"`
	RecipientID uint              `json:"recipient_id" gorm:"index:idx_notification_recipient_project"`
	ProjectID   *uint             `json:"project_id,omitempty" gorm:"index:idx_notification_recipient_project"`
	Message     string            `json:"message"`
	Payload     datatypes.JSONMap `json:"payload,omitempty"`
	IsRead      bool              `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index"`
}

// CreateNotificationRequest defines the request body for creating a notification
type CreateNotificationRequest struct {
	RecipientID uint           `json:"recipient_id" validate:"required"`
	Type        string         `json:"type" validate:"required,oneof=project_invite task_assignment"`
	Message     string         `json:"message" validate:"required,max=500"`
	Payload     map[string]any `json:"payload"`
}
