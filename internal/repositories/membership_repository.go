package repositories

import (
	"context"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"gorm.io/gorm"
)

// MembershipRepository defines the interface for project and conversation
// membership data operations
type MembershipRepository interface {
	IsProjectMember(ctx context.Context, userID, projectID uint) (bool, error)
	GetProjectMembership(ctx context.Context, userID, projectID uint) (*models.ProjectMembership, error)
	CreateProjectMembership(ctx context.Context, membership *models.ProjectMembership) error
	ActivatePendingMembership(ctx context.Context, userID, projectID uint) (int64, error)
	DeletePendingMembership(ctx context.Context, userID, projectID uint) (int64, error)
	GetUserMemberships(ctx context.Context, userID uint) ([]models.ProjectMembership, error)

	AddConversationMembers(ctx context.Context, conversationID uint, userIDs []uint) error
	IsConversationMember(ctx context.Context, conversationID, userID uint) (bool, error)
	GetConversationMemberIDs(ctx context.Context, conversationID uint) ([]uint, error)

	WithTx(tx *gorm.DB) MembershipRepository
}

// PostgresMembershipRepository implements MembershipRepository for PostgreSQL
type PostgresMembershipRepository struct {
	db *gorm.DB
}

// NewPostgresMembershipRepository creates a new PostgresMembershipRepository
func NewPostgresMembershipRepository(db *gorm.DB) *PostgresMembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

// WithTx returns a copy bound to the given transaction
func (r *PostgresMembershipRepository) WithTx(tx *gorm.DB) MembershipRepository {
	return &PostgresMembershipRepository{db: tx}
}

// IsProjectMember reports whether the user holds an active membership
func (r *PostgresMembershipRepository) IsProjectMember(ctx context.Context, userID, projectID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ? AND status = ?", userID, projectID, models.MembershipActive).
		Count(&count).Error
	return count > 0, err
}

// GetProjectMembership returns the membership row regardless of status
func (r *PostgresMembershipRepository) GetProjectMembership(ctx context.Context, userID, projectID uint) (*models.ProjectMembership, error) {
	var membership models.ProjectMembership
	if err := r.db.WithContext(ctx).Where("user_id = ? AND project_id = ?", userID, projectID).First(&membership).Error; err != nil {
		return nil, err
	}
	return &membership, nil
}

func (r *PostgresMembershipRepository) CreateProjectMembership(ctx context.Context, membership *models.ProjectMembership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

// ActivatePendingMembership flips pending to active. The status guard makes a
// second call affect zero rows.
func (r *PostgresMembershipRepository) ActivatePendingMembership(ctx context.Context, userID, projectID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Where("user_id = ? AND project_id = ? AND status = ?", userID, projectID, models.MembershipPending).
		Updates(map[string]any{"status": models.MembershipActive, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// DeletePendingMembership removes a pending membership row
func (r *PostgresMembershipRepository) DeletePendingMembership(ctx context.Context, userID, projectID uint) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND status = ?", userID, projectID, models.MembershipPending).
		Delete(&models.ProjectMembership{})
	return res.RowsAffected, res.Error
}

func (r *PostgresMembershipRepository) GetUserMemberships(ctx context.Context, userID uint) ([]models.ProjectMembership, error) {
	var memberships []models.ProjectMembership
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&memberships).Error
	return memberships, err
}

// AddConversationMembers inserts one row per user id
func (r *PostgresMembershipRepository) AddConversationMembers(ctx context.Context, conversationID uint, userIDs []uint) error {
	if len(userIDs) == 0 {
		return nil
	}
	members := make([]models.ConversationMember, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, models.ConversationMember{ConversationID: conversationID, UserID: id})
	}
	return r.db.WithContext(ctx).Create(&members).Error
}

func (r *PostgresMembershipRepository) IsConversationMember(ctx context.Context, conversationID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresMembershipRepository) GetConversationMemberIDs(ctx context.Context, conversationID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
