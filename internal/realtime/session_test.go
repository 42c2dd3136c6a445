package realtime

import (
	"errors"
	"testing"
)

func TestSession_DropsRepeatedEntity(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 8)
	session := NewSession(bus, 1, func(ev Event) { got <- ev })
	defer session.Close()

	scope := ConversationScope(4)
	if err := session.Subscribe(scope); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := session.Subscribe(scope); err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	if n := bus.SubscriberCount(scope); n != 1 {
		t.Fatalf("expected one subscription for repeated subscribe, got %d", n)
	}

	dup := insertEvent(t, KindMessage, 1)
	bus.Publish(scope, dup)
	bus.Publish(scope, dup)
	bus.Publish(scope, insertEvent(t, KindMessage, 2))

	events := collect(t, got, 2)
	if events[0].EntityID != "1" || events[1].EntityID != "2" {
		t.Fatalf("unexpected deliveries %s, %s", events[0].EntityID, events[1].EntityID)
	}
	expectNone(t, got)
}

func TestSession_SameIDDifferentKindIsNotADuplicate(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 4)
	session := NewSession(bus, 1, func(ev Event) { got <- ev })
	defer session.Close()

	if err := session.Subscribe(UserNotificationsScope(1)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.Publish(UserNotificationsScope(1), insertEvent(t, KindNotification, 1))
	bus.Publish(UserNotificationsScope(1), insertEvent(t, KindMembership, 1))
	collect(t, got, 2)
}

func TestSession_CloseReleasesEverySubscription(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	session := NewSession(bus, 1, func(Event) {})
	scopes := []Scope{ConversationScope(1), UserNotificationsScope(1), ProjectMembershipsScope(1)}
	for _, s := range scopes {
		if err := session.Subscribe(s); err != nil {
			t.Fatalf("subscribe %s: %v", s, err)
		}
	}
	if got := session.Scopes(); len(got) != 3 {
		t.Fatalf("expected 3 scopes, got %v", got)
	}

	session.Unsubscribe(ConversationScope(1))
	session.Unsubscribe(ConversationScope(99))
	if n := bus.SubscriberCount(ConversationScope(1)); n != 0 {
		t.Fatalf("expected unsubscribed scope released, got %d", n)
	}

	session.Close()
	session.Close()
	for _, s := range scopes {
		if n := bus.SubscriberCount(s); n != 0 {
			t.Fatalf("%s still has %d subscribers", s, n)
		}
	}
	if err := session.Subscribe(ConversationScope(1)); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed after close, got %v", err)
	}
}

func TestSeenSet_EvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	if !s.add("a") || !s.add("b") {
		t.Fatal("fresh keys must be accepted")
	}
	if s.add("a") {
		t.Fatal("a is still remembered")
	}
	s.add("c")
	if !s.add("a") {
		t.Fatal("a should have been evicted")
	}
}
