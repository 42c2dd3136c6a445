package firebase

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/anonto42/collab-sync/backend/internal/models"
)

// TopicSender is the part of *messaging.Client the pusher needs
type TopicSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPusher sends each notification to the recipient's topic, user-{id}.
// Clients subscribe their device tokens to that topic after sign in.
type FCMPusher struct {
	client TopicSender
}

func NewFCMPusher(client TopicSender) *FCMPusher {
	return &FCMPusher{client: client}
}

func UserTopic(userID uint) string {
	return "user-" + strconv.FormatUint(uint64(userID), 10)
}

// Push implements services.Pusher
func (p *FCMPusher) Push(ctx context.Context, notification *models.Notification) error {
	if _, err := p.client.Send(ctx, BuildMessage(notification)); err != nil {
		return fmt.Errorf("fcm send to %s: %w", UserTopic(notification.RecipientID), err)
	}
	return nil
}

// BuildMessage maps a notification to an FCM topic message. Data values must
// be strings.
func BuildMessage(n *models.Notification) *messaging.Message {
	data := map[string]string{
		"notification_id": strconv.FormatUint(uint64(n.ID), 10),
		"type":            n.Type,
		"sender_id":       strconv.FormatUint(uint64(n.SenderID), 10),
	}
	if n.ProjectID != nil {
		data[models.PayloadProjectKey] = strconv.FormatUint(uint64(*n.ProjectID), 10)
	}

	return &messaging.Message{
		Topic: UserTopic(n.RecipientID),
		Notification: &messaging.Notification{
			Title: pushTitle(n.Type),
			Body:  n.Message,
		},
		Data: data,
	}
}

func pushTitle(kind string) string {
	switch kind {
	case models.NotificationProjectInvite:
		return "Project invitation"
	case models.NotificationTaskAssignment:
		return "New task assigned"
	default:
		return "Notification"
	}
}
