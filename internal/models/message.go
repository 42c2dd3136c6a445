package models

import "time"

// Message is an immutable chat message. Ordering within a conversation is
// (CreatedAt, ID).
type Message struct {
	ID             uint      `json:"id" gorm:"primaryKey" bson:"_id"`
	ConversationID uint      `json:"conversation_id" gorm:"not null;index:idx_message_conversation_created" bson:"conversation_id"`
	SenderID       uint      `json:"sender_id" gorm:"not null" bson:"sender_id"`
	Content        string    `json:"content" gorm:"type:text;not null" bson:"content"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_message_conversation_created" bson:"created_at"`
}

// SendMessageRequest defines the request body for appending a message
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}
