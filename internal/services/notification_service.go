package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	pushTimeout = 5 * time.Second

	DefaultPageSize = 20
	MaxPageSize     = 50
)

// NotificationService owns the notification lifecycle, including project
// invites and their accept/decline resolution.
type NotificationService struct {
	db            *gorm.DB
	notifications repositories.NotificationRepository
	memberships   repositories.MembershipRepository
	users         repositories.UserRepository
	publisher     Publisher
	pusher        Pusher
	logger        *slog.Logger
}

// NewNotificationService creates a new NotificationService. pusher may be nil.
func NewNotificationService(
	db *gorm.DB,
	notifications repositories.NotificationRepository,
	memberships repositories.MembershipRepository,
	users repositories.UserRepository,
	publisher Publisher,
	pusher Pusher,
) *NotificationService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &NotificationService{
		db:            db,
		notifications: notifications,
		memberships:   memberships,
		users:         users,
		publisher:     publisher,
		pusher:        pusher,
		logger:        slog.Default().With("component", "notifications"),
	}
}

// Create stores an unread notification and announces it to the recipient. A
// project invite goes through the same path as InviteToProject so it always
// has a pending membership behind it.
func (s *NotificationService) Create(ctx context.Context, recipientID uint, kind, message string, senderID uint, payload map[string]any) (*models.Notification, error) {
	notification, err := buildNotification(recipientID, kind, message, senderID, payload)
	if err != nil {
		return nil, err
	}
	if kind == models.NotificationProjectInvite {
		return s.invite(ctx, notification)
	}
	if err := s.notifications.CreateNotification(ctx, notification); err != nil {
		return nil, persistenceError("create notification", err)
	}
	s.announce(notification)
	return notification, nil
}

// InviteToProject records a pending membership for the recipient together
// with the invite notification that lets them accept it.
func (s *NotificationService) InviteToProject(ctx context.Context, senderID, recipientID, projectID uint, message string) (*models.Notification, error) {
	if recipientID == 0 || senderID == recipientID {
		return nil, ErrInvalidParticipant
	}
	notification, err := buildNotification(recipientID, models.NotificationProjectInvite, message, senderID,
		map[string]any{models.PayloadProjectKey: projectID})
	if err != nil {
		return nil, err
	}
	return s.invite(ctx, notification)
}

// invite stores a project_invite notification and its pending membership as
// one unit. The sender must be an active member of the project.
func (s *NotificationService) invite(ctx context.Context, notification *models.Notification) (*models.Notification, error) {
	senderID, recipientID := notification.SenderID, notification.RecipientID
	projectID := *notification.ProjectID
	if recipientID == 0 || senderID == recipientID {
		return nil, ErrInvalidParticipant
	}
	ok, err := s.memberships.IsProjectMember(ctx, senderID, projectID)
	if err != nil {
		return nil, persistenceError("check project membership", err)
	}
	if !ok {
		return nil, ErrInvalidParticipant
	}
	if _, err := s.users.GetUserByID(ctx, recipientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidParticipant
		}
		return nil, persistenceError("lookup recipient", err)
	}

	if strings.TrimSpace(notification.Message) == "" {
		notification.Message = s.defaultInviteMessage(ctx, senderID, projectID)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memberships := s.memberships.WithTx(tx)
		existing, err := memberships.GetProjectMembership(ctx, recipientID, projectID)
		switch {
		case err == nil && existing.Status == models.MembershipActive:
			return ErrAlreadyMember
		case err == nil:
			return ErrAlreadyInvited
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := memberships.CreateProjectMembership(ctx, &models.ProjectMembership{
			UserID:    recipientID,
			ProjectID: projectID,
			Status:    models.MembershipPending,
			Role:      "member",
			InvitedBy: senderID,
		}); err != nil {
			return fmt.Errorf("insert pending membership: %w", err)
		}
		if err := s.notifications.WithTx(tx).CreateNotification(ctx, notification); err != nil {
			return fmt.Errorf("insert invite notification: %w", err)
		}
		return nil
	})
	if err != nil {
		notification.ID = 0
		if errors.Is(err, ErrAlreadyMember) || errors.Is(err, ErrAlreadyInvited) {
			return nil, err
		}
		return nil, persistenceError("invite to project", err)
	}

	s.logger.Info("project invite sent", "project_id", projectID, "sender_id", senderID, "recipient_id", recipientID)
	s.announce(notification)
	s.publishDelta(models.DeltaMemberInvited, projectID, recipientID)
	return notification, nil
}

// Accept activates the recipient's pending membership and marks the matching
// notifications read. A second call returns ErrNothingToAccept.
func (s *NotificationService) Accept(ctx context.Context, recipientID, projectID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.memberships.WithTx(tx).ActivatePendingMembership(ctx, recipientID, projectID)
		if err != nil {
			return fmt.Errorf("activate membership: %w", err)
		}
		if n == 0 {
			return ErrNothingToAccept
		}
		if _, err := s.notifications.WithTx(tx).MarkProjectAsRead(ctx, recipientID, projectID); err != nil {
			return fmt.Errorf("mark invites read: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingToAccept) {
			return err
		}
		return persistenceError("accept invite", err)
	}

	s.logger.Info("project invite accepted", "project_id", projectID, "user_id", recipientID)
	s.publishDelta(models.DeltaMemberActivated, projectID, recipientID)
	return nil
}

// Decline removes the recipient's pending membership and marks the matching
// notifications read. A second call returns ErrNothingToDecline.
func (s *NotificationService) Decline(ctx context.Context, recipientID, projectID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.memberships.WithTx(tx).DeletePendingMembership(ctx, recipientID, projectID)
		if err != nil {
			return fmt.Errorf("delete pending membership: %w", err)
		}
		if n == 0 {
			return ErrNothingToDecline
		}
		if _, err := s.notifications.WithTx(tx).MarkProjectAsRead(ctx, recipientID, projectID); err != nil {
			return fmt.Errorf("mark invites read: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingToDecline) {
			return err
		}
		return persistenceError("decline invite", err)
	}

	s.logger.Info("project invite declined", "project_id", projectID, "user_id", recipientID)
	s.publishDelta(models.DeltaMemberDeclined, projectID, recipientID)
	return nil
}

// MarkRead marks one of the recipient's notifications read. Marking an
// already-read notification succeeds.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID, notificationID uint) error {
	notification, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return persistenceError("get notification", err)
	}
	if notification.RecipientID != recipientID {
		return ErrNotificationNotFound
	}
	if notification.IsRead {
		return nil
	}
	if err := s.notifications.MarkAsRead(ctx, notificationID); err != nil {
		return persistenceError("mark notification read", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID uint) error {
	if err := s.notifications.MarkAllAsRead(ctx, recipientID); err != nil {
		return persistenceError("mark all read", err)
	}
	return nil
}

// List returns one page of the recipient's notifications, newest first
func (s *NotificationService) List(ctx context.Context, recipientID uint, page, limit int) ([]models.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	notifications, total, err := s.notifications.GetByRecipientID(ctx, recipientID, page, limit)
	if err != nil {
		return nil, 0, persistenceError("list notifications", err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, total, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	count, err := s.notifications.GetUnreadCount(ctx, recipientID)
	if err != nil {
		return 0, persistenceError("unread count", err)
	}
	return count, nil
}

// ListProjectMemberships returns every membership row of the user, pending and active
func (s *NotificationService) ListProjectMemberships(ctx context.Context, userID uint) ([]models.ProjectMembership, error) {
	memberships, err := s.memberships.GetUserMemberships(ctx, userID)
	if err != nil {
		return nil, persistenceError("list memberships", err)
	}
	if memberships == nil {
		memberships = []models.ProjectMembership{}
	}
	return memberships, nil
}

// announce publishes a committed notification and hands it to the pusher
func (s *NotificationService) announce(notification *models.Notification) {
	publishInsert(s.publisher, s.logger, realtime.UserNotificationsScope(notification.RecipientID),
		realtime.KindNotification, idString(notification.ID), notification)

	if s.pusher == nil {
		return
	}
	pushed := *notification
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		if err := s.pusher.Push(ctx, &pushed); err != nil {
			s.logger.Warn("push notification", "notification_id", pushed.ID, "recipient_id", pushed.RecipientID, "error", err)
		}
	}()
}

func (s *NotificationService) publishDelta(change string, projectID, userID uint) {
	// unique per event: one user can be invited and declined repeatedly
	delta := models.MembershipDelta{
		ID:        change + ":" + uuid.NewString(),
		Change:    change,
		ProjectID: projectID,
		UserIDs:   []uint{userID},
	}
	publishInsert(s.publisher, s.logger, realtime.ProjectMembershipsScope(projectID), realtime.KindMembership, delta.ID, delta)
}

func (s *NotificationService) defaultInviteMessage(ctx context.Context, senderID, projectID uint) string {
	if sender, err := s.users.GetUserByID(ctx, senderID); err == nil && sender.Name != "" {
		return fmt.Sprintf("%s invited you to project %d", sender.Name, projectID)
	}
	return fmt.Sprintf("You have been invited to project %d", projectID)
}

func buildNotification(recipientID uint, kind, message string, senderID uint, payload map[string]any) (*models.Notification, error) {
	if recipientID == 0 {
		return nil, ErrInvalidPayload
	}
	if kind != models.NotificationProjectInvite && kind != models.NotificationTaskAssignment {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, kind)
	}

	var projectID *uint
	if raw, ok := payload[models.PayloadProjectKey]; ok {
		id, err := parseProjectID(raw)
		if err != nil {
			return nil, err
		}
		projectID = &id
	}
	if kind == models.NotificationProjectInvite && projectID == nil {
		return nil, fmt.Errorf("%w: %s requires %s", ErrInvalidPayload, kind, models.PayloadProjectKey)
	}

	var stored datatypes.JSONMap
	if len(payload) > 0 {
		stored = make(datatypes.JSONMap, len(payload))
		for k, v := range payload {
			stored[k] = v
		}
		if projectID != nil {
			stored[models.PayloadProjectKey] = *projectID
		}
	}

	return &models.Notification{
		Type:        kind,
		SenderID:    senderID,
		RecipientID: recipientID,
		ProjectID:   projectID,
		Message:     message,
		Payload:     stored,
		IsRead:      false,
	}, nil
}

// parseProjectID accepts the shapes a project id takes after JSON decoding or
// when set from Go code.
func parseProjectID(raw any) (uint, error) {
	var id uint64
	switch v := raw.(type) {
	case float64:
		if v <= 0 || v != float64(uint64(v)) {
			return 0, fmt.Errorf("%w: bad %s %v", ErrInvalidPayload, models.PayloadProjectKey, v)
		}
		id = uint64(v)
	case int:
		if v <= 0 {
			return 0, fmt.Errorf("%w: bad %s %d", ErrInvalidPayload, models.PayloadProjectKey, v)
		}
		id = uint64(v)
	case int64:
		if v <= 0 {
			return 0, fmt.Errorf("%w: bad %s %d", ErrInvalidPayload, models.PayloadProjectKey, v)
		}
		id = uint64(v)
	case uint:
		id = uint64(v)
	case uint64:
		id = v
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad %s %q", ErrInvalidPayload, models.PayloadProjectKey, v)
		}
		id = n
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad %s %q", ErrInvalidPayload, models.PayloadProjectKey, v)
		}
		id = n
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidPayload, models.PayloadProjectKey, raw)
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: %s is zero", ErrInvalidPayload, models.PayloadProjectKey)
	}
	return uint(id), nil
}
