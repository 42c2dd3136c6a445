package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/repositories"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errInjected = errors.New("injected failure")

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(scope realtime.Scope, ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.Scope = scope
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) on(scope realtime.Scope) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, ev := range p.events {
		if ev.Scope == scope {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fixture struct {
	db            *gorm.DB
	users         *repositories.PostgresUserRepository
	memberships   *repositories.PostgresMembershipRepository
	conversations *repositories.PostgresConversationRepository
	messages      *repositories.PostgresMessageRepository
	notifications repositories.NotificationRepository
	publisher     *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every pooled connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.ProjectMembership{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.Message{},
		&models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return &fixture{
		db:            db,
		users:         repositories.NewPostgresUserRepository(db),
		memberships:   repositories.NewPostgresMembershipRepository(db),
		conversations: repositories.NewPostgresConversationRepository(db),
		messages:      repositories.NewPostgresMessageRepository(db),
		notifications: repositories.NewPostgresNotificationRepository(db),
		publisher:     &recordingPublisher{},
	}
}

func (f *fixture) seedUsers(t *testing.T, ids ...uint) {
	t.Helper()
	for _, id := range ids {
		u := &models.User{ID: id, Name: fmt.Sprintf("user %d", id), Email: fmt.Sprintf("u%d@example.com", id)}
		if err := f.db.Create(u).Error; err != nil {
			t.Fatalf("seed user %d: %v", id, err)
		}
	}
}

func (f *fixture) seedMembership(t *testing.T, projectID uint, status string, userIDs ...uint) {
	t.Helper()
	for _, id := range userIDs {
		m := &models.ProjectMembership{UserID: id, ProjectID: projectID, Status: status, Role: "member"}
		if err := f.db.Create(m).Error; err != nil {
			t.Fatalf("seed membership %d/%d: %v", projectID, id, err)
		}
	}
}

func (f *fixture) conversationService() *ConversationService {
	return NewConversationService(f.db, f.conversations, f.memberships, f.messages, f.users, f.publisher)
}

func (f *fixture) messageService() *MessageService {
	return NewMessageService(f.messages, f.memberships, f.publisher)
}

func (f *fixture) notificationService(pusher Pusher) *NotificationService {
	return NewNotificationService(f.db, f.notifications, f.memberships, f.users, f.publisher, pusher)
}

// failWrites makes every create or update against table fail
func (f *fixture) failWrites(t *testing.T, table string) {
	t.Helper()
	fail := func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			_ = tx.AddError(errInjected)
		}
	}
	if err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_create_"+table, fail); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	if err := f.db.Callback().Update().Before("gorm:update").Register("test:fail_update_"+table, fail); err != nil {
		t.Fatalf("register update callback: %v", err)
	}
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

type fakePusher struct {
	pushed chan *models.Notification
	err    error
}

func newFakePusher(err error) *fakePusher {
	return &fakePusher{pushed: make(chan *models.Notification, 8), err: err}
}

func (p *fakePusher) Push(_ context.Context, n *models.Notification) error {
	p.pushed <- n
	return p.err
}

func (p *fakePusher) wait(t *testing.T) *models.Notification {
	t.Helper()
	select {
	case n := <-p.pushed:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
		return nil
	}
}
