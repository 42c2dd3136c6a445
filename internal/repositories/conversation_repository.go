package repositories

import (
	"context"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"gorm.io/gorm"
)

// ConversationRepository defines the interface for conversation data operations
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	GetConversationByID(ctx context.Context, id uint) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID, projectID uint, kind string) ([]models.Conversation, error)
	WithTx(tx *gorm.DB) ConversationRepository
}

// PostgresConversationRepository implements ConversationRepository for PostgreSQL
type PostgresConversationRepository struct {
	db *gorm.DB
}

// NewPostgresConversationRepository creates a new PostgresConversationRepository
func NewPostgresConversationRepository(db *gorm.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresConversationRepository) WithTx(tx *gorm.DB) ConversationRepository {
	return &PostgresConversationRepository{db: tx}
}

// CreateConversation inserts the conversation row only; members are added
// through the membership repository.
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	return r.db.WithContext(ctx).Omit("Members").Create(conversation).Error
}

// GetConversationByID retrieves a conversation with its members
func (r *PostgresConversationRepository) GetConversationByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := r.db.WithContext(ctx).Preload("Members").First(&conversation, id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetUserConversations lists the conversations the user belongs to inside a
// project, oldest first. An empty kind matches both kinds.
func (r *PostgresConversationRepository) GetUserConversations(ctx context.Context, userID, projectID uint, kind string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	q := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where("id IN (?)", r.db.Table("conversation_members").Select("conversation_id").Where("user_id = ?", userID))
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	err := q.Preload("Members").Order("created_at ASC, id ASC").Find(&conversations).Error
	return conversations, err
}
