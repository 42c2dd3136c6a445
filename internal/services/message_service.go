package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
)

// MessageService appends to and reads the per-conversation message log
type MessageService struct {
	messages    repositories.MessageRepository
	memberships repositories.MembershipRepository
	publisher   Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewMessageService creates a new MessageService
func NewMessageService(messages repositories.MessageRepository, memberships repositories.MembershipRepository, publisher Publisher) *MessageService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &MessageService{
		messages:    messages,
		memberships: memberships,
		publisher:   publisher,
		logger:      slog.Default().With("component", "messages"),
		now:         time.Now,
	}
}

// Append stores a message from a conversation member and publishes it on the
// conversation scope.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	ok, err := s.memberships.IsConversationMember(ctx, conversationID, senderID)
	if err != nil {
		return nil, persistenceError("check conversation membership", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}

	// millisecond precision survives both Postgres and BSON dates unchanged
	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, persistenceError("append message", err)
	}

	publishInsert(s.publisher, s.logger, realtime.ConversationScope(conversationID),
		realtime.KindMessage, idString(message.ID), message)
	return message, nil
}

// List returns the conversation's messages oldest first. It does not check
// membership; see ListForMember.
func (s *MessageService) List(ctx context.Context, conversationID uint) ([]models.Message, error) {
	messages, err := s.messages.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, persistenceError("list messages", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// ListForMember is List restricted to members of the conversation
func (s *MessageService) ListForMember(ctx context.Context, userID, conversationID uint) ([]models.Message, error) {
	ok, err := s.memberships.IsConversationMember(ctx, conversationID, userID)
	if err != nil {
		return nil, persistenceError("check conversation membership", err)
	}
	if !ok {
		return nil, ErrNotAMember
	}
	return s.List(ctx, conversationID)
}
