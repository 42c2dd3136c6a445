package services

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
)

// Publisher mirrors committed writes to live subscribers
type Publisher interface {
	Publish(scope realtime.Scope, ev realtime.Event)
}

// Pusher delivers a notification out of band (mobile push). Failures never
// affect the write that created the notification.
type Pusher interface {
	Push(ctx context.Context, notification *models.Notification) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(realtime.Scope, realtime.Event) {}

func publishInsert(pub Publisher, logger *slog.Logger, scope realtime.Scope, kind, id string, entity any) {
	ev, err := realtime.NewInsertEvent(kind, id, entity)
	if err != nil {
		logger.Error("build realtime event", "scope", scope, "kind", kind, "error", err)
		return
	}
	pub.Publish(scope, ev)
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
