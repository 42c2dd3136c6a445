package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Runs against a real server when MONGO_URI is set.
func newMongoRepo(t *testing.T) *MongoMessageRepository {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := client.Database("collab_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoMessageRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	return repo
}

func TestMongoMessageRepository_OrderAndLatest(t *testing.T) {
	repo := newMongoRepo(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		{ConversationID: 1, SenderID: 1, Content: "b", CreatedAt: at},
		{ConversationID: 1, SenderID: 2, Content: "c", CreatedAt: at},
		{ConversationID: 1, SenderID: 1, Content: "a", CreatedAt: at.Add(-time.Second)},
		{ConversationID: 2, SenderID: 3, Content: "other", CreatedAt: at},
	}
	for _, m := range msgs {
		if err := repo.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if msgs[1].ID <= msgs[0].ID {
		t.Fatalf("expected increasing ids, got %d then %d", msgs[0].ID, msgs[1].ID)
	}

	got, err := repo.GetConversationMessages(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Content != want[i] {
			t.Fatalf("position %d: expected %q, got %q", i, want[i], got[i].Content)
		}
	}
	if !got[1].CreatedAt.Equal(at) {
		t.Fatalf("timestamp did not round-trip: %v", got[1].CreatedAt)
	}

	latest, err := repo.GetLatestMessages(ctx, []uint{1, 2, 3})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest[1].Content != "c" || latest[2].Content != "other" {
		t.Fatalf("unexpected latest %+v", latest)
	}
	if _, ok := latest[3]; ok {
		t.Fatalf("conversation without messages must be absent")
	}
}
