package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"gorm.io/gorm"
)

const pairLockStripes = 64

// ConversationService resolves direct conversations and creates group ones.
type ConversationService struct {
	db            *gorm.DB
	conversations repositories.ConversationRepository
	memberships   repositories.MembershipRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	publisher     Publisher
	logger        *slog.Logger

	// pairLocks serializes find-or-create for the same pair within this
	// process so two concurrent callers cannot both create a conversation.
	pairLocks [pairLockStripes]sync.Mutex
}

// NewConversationService creates a new ConversationService
func NewConversationService(
	db *gorm.DB,
	conversations repositories.ConversationRepository,
	memberships repositories.MembershipRepository,
	messages repositories.MessageRepository,
	users repositories.UserRepository,
	publisher Publisher,
) *ConversationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ConversationService{
		db:            db,
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		users:         users,
		publisher:     publisher,
		logger:        slog.Default().With("component", "conversations"),
	}
}

// FindOrCreateDirect returns the direct conversation between the two users in
// the project, creating it when none exists. Argument order does not matter.
func (s *ConversationService) FindOrCreateDirect(ctx context.Context, requesterID, recipientID, projectID uint) (uint, error) {
	if requesterID == 0 || recipientID == 0 || requesterID == recipientID {
		return 0, ErrInvalidParticipant
	}
	if err := s.requireProjectMembers(ctx, projectID, requesterID, recipientID); err != nil {
		return 0, err
	}

	lock := s.pairLock(projectID, requesterID, recipientID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.findDirect(ctx, requesterID, recipientID, projectID)
	if err != nil {
		return 0, err
	}
	if existing != 0 {
		return existing, nil
	}

	conversation := &models.Conversation{
		Kind:      models.ConversationDirect,
		ProjectID: projectID,
		CreatedBy: requesterID,
	}
	memberIDs := []uint{requesterID, recipientID}
	if err := s.create(ctx, conversation, memberIDs); err != nil {
		return 0, err
	}

	s.logger.Info("direct conversation created", "conversation_id", conversation.ID, "project_id", projectID)
	return conversation.ID, nil
}

// CreateGroup creates a named conversation with the given members. The
// creator is not added implicitly.
func (s *ConversationService) CreateGroup(ctx context.Context, name string, memberIDs []uint, creatorID, projectID uint) (uint, error) {
	name = strings.TrimSpace(name)
	members := uniqueIDs(memberIDs)
	if name == "" || len(members) < 2 {
		return 0, ErrInvalidGroup
	}
	if err := s.requireProjectMembers(ctx, projectID, creatorID); err != nil {
		return 0, err
	}
	if err := s.requireProjectMembers(ctx, projectID, members...); err != nil {
		return 0, err
	}

	conversation := &models.Conversation{
		Kind:      models.ConversationGroup,
		ProjectID: projectID,
		Name:      name,
		CreatedBy: creatorID,
	}
	if err := s.create(ctx, conversation, members); err != nil {
		return 0, err
	}

	s.logger.Info("group conversation created", "conversation_id", conversation.ID, "project_id", projectID, "members", len(members))
	return conversation.ID, nil
}

// ListForUser returns the user's conversations in the project, most recent
// activity first
func (s *ConversationService) ListForUser(ctx context.Context, userID, projectID uint) ([]models.ConversationSummary, error) {
	conversations, err := s.conversations.GetUserConversations(ctx, userID, projectID, "")
	if err != nil {
		return nil, persistenceError("list conversations", err)
	}
	if len(conversations) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]uint, 0, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ID)
	}
	latest, err := s.messages.GetLatestMessages(ctx, ids)
	if err != nil {
		return nil, persistenceError("latest messages", err)
	}
	people, err := s.participants(ctx, conversations)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		summary := models.ConversationSummary{Conversation: c, Participants: participantsOf(c, people)}
		if m, ok := latest[c.ID]; ok {
			last := m
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

// Get returns one conversation the user belongs to
func (s *ConversationService) Get(ctx context.Context, userID, conversationID uint) (*models.ConversationSummary, error) {
	conversation, err := s.conversations.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, persistenceError("get conversation", err)
	}

	member := false
	for _, m := range conversation.Members {
		if m.UserID == userID {
			member = true
			break
		}
	}
	if !member {
		return nil, ErrNotAMember
	}

	people, err := s.participants(ctx, []models.Conversation{*conversation})
	if err != nil {
		return nil, err
	}
	return &models.ConversationSummary{Conversation: *conversation, Participants: participantsOf(*conversation, people)}, nil
}

// create writes the conversation and its member rows as one unit and
// publishes the change once committed.
func (s *ConversationService) create(ctx context.Context, conversation *models.Conversation, memberIDs []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.conversations.WithTx(tx).CreateConversation(ctx, conversation); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		if err := s.memberships.WithTx(tx).AddConversationMembers(ctx, conversation.ID, memberIDs); err != nil {
			return fmt.Errorf("insert members: %w", err)
		}
		return nil
	})
	if err != nil {
		conversation.ID = 0
		return persistenceError("create conversation", err)
	}

	delta := models.MembershipDelta{
		ID:             models.DeltaConversationCreated + ":" + idString(conversation.ID),
		Change:         models.DeltaConversationCreated,
		ProjectID:      conversation.ProjectID,
		ConversationID: conversation.ID,
		UserIDs:        memberIDs,
	}
	publishInsert(s.publisher, s.logger, realtime.ProjectMembershipsScope(conversation.ProjectID),
		realtime.KindMembership, delta.ID, delta)
	return nil
}

// findDirect scans the requester's direct conversations in the project, oldest
// first, for one the recipient also belongs to.
func (s *ConversationService) findDirect(ctx context.Context, requesterID, recipientID, projectID uint) (uint, error) {
	conversations, err := s.conversations.GetUserConversations(ctx, requesterID, projectID, models.ConversationDirect)
	if err != nil {
		return 0, persistenceError("list direct conversations", err)
	}
	for _, c := range conversations {
		for _, m := range c.Members {
			if m.UserID == recipientID {
				return c.ID, nil
			}
		}
	}
	return 0, nil
}

func (s *ConversationService) requireProjectMembers(ctx context.Context, projectID uint, userIDs ...uint) error {
	for _, id := range userIDs {
		ok, err := s.memberships.IsProjectMember(ctx, id, projectID)
		if err != nil {
			return persistenceError("check project membership", err)
		}
		if !ok {
			return ErrInvalidParticipant
		}
	}
	return nil
}

func (s *ConversationService) participants(ctx context.Context, conversations []models.Conversation) (map[uint]models.UserCompact, error) {
	var ids []uint
	for _, c := range conversations {
		for _, m := range c.Members {
			ids = append(ids, m.UserID)
		}
	}
	users, err := s.users.GetUsersByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return nil, persistenceError("resolve participants", err)
	}
	people := make(map[uint]models.UserCompact, len(users))
	for i := range users {
		people[users[i].ID] = users[i].ToCompact()
	}
	return people, nil
}

func (s *ConversationService) pairLock(projectID, a, b uint) *sync.Mutex {
	if a > b {
		a, b = b, a
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d:%d", projectID, a, b)
	return &s.pairLocks[h.Sum32()%pairLockStripes]
}

func participantsOf(c models.Conversation, people map[uint]models.UserCompact) []models.UserCompact {
	out := make([]models.UserCompact, 0, len(c.Members))
	for _, m := range c.Members {
		if p, ok := people[m.UserID]; ok {
			out = append(out, p)
		} else {
			out = append(out, models.UserCompact{ID: m.UserID})
		}
	}
	return out
}

func lastActivity(s models.ConversationSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.CreatedAt
}

// uniqueIDs drops zero and repeated ids, keeping first-seen order
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
