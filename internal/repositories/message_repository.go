package repositories

import (
	"context"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"gorm.io/gorm"
)

// MessageRepository defines the interface for message data operations.
// Messages are append-only; there is no update or delete.
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	GetConversationMessages(ctx context.Context, conversationID uint) ([]models.Message, error)
	GetLatestMessages(ctx context.Context, conversationIDs []uint) (map[uint]models.Message, error)
}

// PostgresMessageRepository implements MessageRepository for PostgreSQL
type PostgresMessageRepository struct {
	db *gorm.DB
}

// NewPostgresMessageRepository creates a new PostgresMessageRepository
func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetConversationMessages returns every message of the conversation ordered by (created_at, id)
func (r *PostgresMessageRepository) GetConversationMessages(ctx context.Context, conversationID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// GetLatestMessages returns the newest message of each given conversation
func (r *PostgresMessageRepository) GetLatestMessages(ctx context.Context, conversationIDs []uint) (map[uint]models.Message, error) {
	latest := make(map[uint]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	// one index probe per conversation on (conversation_id, created_at)
	newest := r.db.Table("messages AS m").
		Select("m.id").
		Where("m.conversation_id = messages.conversation_id").
		Order("m.created_at DESC, m.id DESC").
		Limit(1)

	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Where("id = (?)", newest).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		latest[m.ConversationID] = m
	}
	return latest, nil
}
