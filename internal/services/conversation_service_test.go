package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/models"
	"github.com/anonto42/collab-sync/backend/internal/realtime"
)

const testProject uint = 10

func newConversationFixture(t *testing.T) (*fixture, *ConversationService) {
	t.Helper()
	f := newFixture(t)
	f.seedUsers(t, 1, 2, 3, 4)
	f.seedMembership(t, testProject, models.MembershipActive, 1, 2, 3)
	f.seedMembership(t, testProject, models.MembershipPending, 4)
	return f, f.conversationService()
}

func TestFindOrCreateDirect_SameConversationEitherOrder(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	first, err := svc.FindOrCreateDirect(ctx, 1, 2, testProject)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.FindOrCreateDirect(ctx, 2, 1, testProject)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first != second {
		t.Fatalf("expected same conversation, got %d and %d", first, second)
	}

	members, err := f.memberships.GetConversationMemberIDs(ctx, first)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 || members[0] != 1 || members[1] != 2 {
		t.Fatalf("expected members [1 2], got %v", members)
	}

	events := f.publisher.on(realtime.ProjectMembershipsScope(testProject))
	if len(events) != 1 {
		t.Fatalf("expected one membership event, got %d", len(events))
	}
	var delta models.MembershipDelta
	if err := events[0].Decode(&delta); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if delta.Change != models.DeltaConversationCreated || delta.ConversationID != first {
		t.Fatalf("unexpected delta %+v", delta)
	}
}

func TestFindOrCreateDirect_RejectsInvalidParticipants(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	cases := []struct {
		name                 string
		requester, recipient uint
	}{
		{"self", 1, 1},
		{"zero recipient", 1, 0},
		{"pending recipient", 1, 4},
		{"unknown recipient", 1, 99},
		{"pending requester", 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.FindOrCreateDirect(ctx, tc.requester, tc.recipient, testProject)
			if !errors.Is(err, ErrInvalidParticipant) {
				t.Fatalf("expected ErrInvalidParticipant, got %v", err)
			}
		})
	}

	if n := f.count(t, &models.Conversation{}, ""); n != 0 {
		t.Fatalf("expected no conversations, got %d", n)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no events")
	}
}

func TestFindOrCreateDirect_ConcurrentCallersShareOneConversation(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := uint(1), uint(3)
			if i%2 == 1 {
				a, b = b, a
			}
			ids[i], errs[i] = svc.FindOrCreateDirect(ctx, a, b, testProject)
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %d, want %d", i, ids[i], ids[0])
		}
	}
	if n := f.count(t, &models.Conversation{}, "kind = ?", models.ConversationDirect); n != 1 {
		t.Fatalf("expected 1 direct conversation, got %d", n)
	}
}

func TestFindOrCreateDirect_ScopedToProject(t *testing.T) {
	f, svc := newConversationFixture(t)
	f.seedMembership(t, 11, models.MembershipActive, 1, 2)
	ctx := context.Background()

	a, err := svc.FindOrCreateDirect(ctx, 1, 2, testProject)
	if err != nil {
		t.Fatalf("project %d: %v", testProject, err)
	}
	b, err := svc.FindOrCreateDirect(ctx, 1, 2, 11)
	if err != nil {
		t.Fatalf("project 11: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct conversations per project")
	}
}

func TestFindOrCreateDirect_IgnoresGroupsWithSameMembers(t *testing.T) {
	_, svc := newConversationFixture(t)
	ctx := context.Background()

	group, err := svc.CreateGroup(ctx, "pair", []uint{1, 2}, 1, testProject)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	direct, err := svc.FindOrCreateDirect(ctx, 1, 2, testProject)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if direct == group {
		t.Fatalf("direct lookup returned the group conversation")
	}
}

func TestFindOrCreateDirect_RollsBackOnMemberInsertFailure(t *testing.T) {
	f, svc := newConversationFixture(t)
	f.failWrites(t, "conversation_members")

	_, err := svc.FindOrCreateDirect(context.Background(), 1, 2, testProject)
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if n := f.count(t, &models.Conversation{}, ""); n != 0 {
		t.Fatalf("expected conversation insert rolled back, found %d", n)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no events after rollback")
	}
}

func TestCreateGroup(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	id, err := svc.CreateGroup(ctx, "  design  ", []uint{2, 3, 2, 1}, 1, testProject)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	members, err := f.memberships.GetConversationMemberIDs(ctx, id)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 distinct members, got %v", members)
	}

	summary, err := svc.Get(ctx, 2, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if summary.Name != "design" || summary.Kind != models.ConversationGroup {
		t.Fatalf("unexpected conversation %+v", summary.Conversation)
	}
	if len(summary.Participants) != 3 || summary.Participants[0].Name == "" {
		t.Fatalf("expected resolved participants, got %+v", summary.Participants)
	}
}

func TestCreateGroup_RollsBackOnMemberInsertFailure(t *testing.T) {
	f, svc := newConversationFixture(t)
	f.failWrites(t, "conversation_members")

	_, err := svc.CreateGroup(context.Background(), "design", []uint{1, 2, 3}, 1, testProject)
	if !errors.Is(err, ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if n := f.count(t, &models.Conversation{}, ""); n != 0 {
		t.Fatalf("expected conversation insert rolled back, found %d", n)
	}
	if n := f.count(t, &models.ConversationMember{}, ""); n != 0 {
		t.Fatalf("expected no member rows, found %d", n)
	}
	if f.publisher.count() != 0 {
		t.Fatalf("expected no events after rollback")
	}
}

func TestCreateGroup_CreatorNotAddedImplicitly(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	id, err := svc.CreateGroup(ctx, "others", []uint{2, 3}, 1, testProject)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	ok, err := f.memberships.IsConversationMember(ctx, id, 1)
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if ok {
		t.Fatalf("creator should not be a member")
	}
	if _, err := svc.Get(ctx, 1, id); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember for creator, got %v", err)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		group   string
		members []uint
		want    error
	}{
		{"blank name", "   ", []uint{1, 2}, ErrInvalidGroup},
		{"one member", "solo", []uint{2}, ErrInvalidGroup},
		{"duplicates collapse to one", "dup", []uint{2, 2, 2}, ErrInvalidGroup},
		{"pending member", "mixed", []uint{2, 4}, ErrInvalidParticipant},
		{"unknown member", "ghost", []uint{2, 42}, ErrInvalidParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateGroup(ctx, tc.group, tc.members, 1, testProject)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := f.count(t, &models.Conversation{}, ""); n != 0 {
		t.Fatalf("expected no conversations, got %d", n)
	}
}

func TestListForUser_OrdersByLastActivity(t *testing.T) {
	f, svc := newConversationFixture(t)
	ctx := context.Background()
	messages := f.messageService()

	older, err := svc.FindOrCreateDirect(ctx, 1, 2, testProject)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	newer, err := svc.CreateGroup(ctx, "team", []uint{1, 2, 3}, 1, testProject)
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if _, err := svc.FindOrCreateDirect(ctx, 2, 3, testProject); err != nil {
		t.Fatalf("unrelated direct: %v", err)
	}

	base := time.Now().Add(time.Hour)
	messages.now = func() time.Time { return base }
	if _, err := messages.Append(ctx, older, 2, "ping"); err != nil {
		t.Fatalf("append: %v", err)
	}

	summaries, err := svc.ListForUser(ctx, 1, testProject)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 conversations for user 1, got %d", len(summaries))
	}
	if summaries[0].ID != older || summaries[1].ID != newer {
		t.Fatalf("expected [%d %d], got [%d %d]", older, newer, summaries[0].ID, summaries[1].ID)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "ping" {
		t.Fatalf("expected last message on direct conversation, got %+v", summaries[0].LastMessage)
	}
	if summaries[1].LastMessage != nil {
		t.Fatalf("expected no last message on group")
	}
}

func TestGet_Errors(t *testing.T) {
	_, svc := newConversationFixture(t)
	ctx := context.Background()

	id, err := svc.FindOrCreateDirect(ctx, 1, 2, testProject)
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if _, err := svc.Get(ctx, 3, id); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if _, err := svc.Get(ctx, 1, id+100); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
