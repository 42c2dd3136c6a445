package realtime

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func insertEvent(t *testing.T, kind string, id int) Event {
	t.Helper()
	ev, err := NewInsertEvent(kind, strconv.Itoa(id), map[string]int{"id": id})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return ev
}

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func expectNone(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus(WithQueueSize(128))
	defer bus.Close()

	scope := ConversationScope(1)
	got := make(chan Event, 128)
	if _, err := bus.Subscribe(scope, func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	const total = 100
	for i := 1; i <= total; i++ {
		bus.Publish(scope, insertEvent(t, KindMessage, i))
	}
	events := collect(t, got, total)
	for i, ev := range events {
		if ev.EntityID != strconv.Itoa(i+1) {
			t.Fatalf("position %d: got entity %s", i, ev.EntityID)
		}
		if ev.Scope != scope || ev.PublishedAt.IsZero() {
			t.Fatalf("event not stamped: %+v", ev)
		}
	}
}

func TestBus_ScopesAreIsolated(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	mine := make(chan Event, 4)
	if _, err := bus.Subscribe(ConversationScope(1), func(ev Event) { mine <- ev }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.Publish(ConversationScope(2), insertEvent(t, KindMessage, 1))
	bus.Publish(UserNotificationsScope(1), insertEvent(t, KindNotification, 1))
	expectNone(t, mine)
}

func TestBus_StalledHandlerDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus(WithQueueSize(16))
	defer bus.Close()

	scope := ConversationScope(1)
	events := make([]Event, 50)
	for i := range events {
		events[i] = insertEvent(t, KindMessage, i+1)
	}
	release := make(chan struct{})
	var once sync.Once
	got := make(chan Event, 64)
	slow, err := bus.Subscribe(scope, func(ev Event) {
		once.Do(func() { <-release })
		got <- ev
	})
	if err != nil {
		t.Fatalf("subscribe slow: %v", err)
	}
	fast := make(chan Event, 64)
	if _, err := bus.Subscribe(scope, func(ev Event) { fast <- ev }); err != nil {
		t.Fatalf("subscribe fast: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for _, ev := range events {
			bus.Publish(scope, ev)
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	if n := len(collect(t, fast, 50)); n != 50 {
		t.Fatalf("fast subscriber got %d events", n)
	}
	if slow.Dropped() == 0 {
		t.Fatalf("expected the stalled subscription to drop events")
	}

	close(release)
	sawResync := false
	timeout := time.After(2 * time.Second)
	for !sawResync {
		select {
		case ev := <-got:
			if ev.Type == EventResync {
				sawResync = true
			}
		case <-timeout:
			t.Fatal("expected a resync event after overflow")
		}
	}
}

func TestBus_UnsubscribeFromHandler(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	scope := UserNotificationsScope(7)
	got := make(chan Event, 8)
	var sub *Subscription
	sub, err := bus.Subscribe(scope, func(ev Event) {
		got <- ev
		bus.Unsubscribe(sub)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 1; i <= 3; i++ {
		bus.Publish(scope, insertEvent(t, KindNotification, i))
	}
	collect(t, got, 1)
	expectNone(t, got)

	if !sub.Closed() {
		t.Fatalf("expected subscription closed")
	}
	if n := bus.SubscriberCount(scope); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	scope := ProjectMembershipsScope(3)
	got := make(chan Event, 1)
	sub, err := bus.Subscribe(scope, func(ev Event) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)

	bus.Publish(scope, insertEvent(t, KindMembership, 1))
	expectNone(t, got)
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus := NewBus()

	if _, err := bus.Subscribe(ConversationScope(1), nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if _, err := bus.Subscribe(Scope("room:1"), func(Event) {}); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}

	bus.Close()
	bus.Close()
	if _, err := bus.Subscribe(ConversationScope(1), func(Event) {}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestBus_HandlerPanicDoesNotKillSubscription(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	scope := ConversationScope(9)
	got := make(chan Event, 4)
	first := true
	if _, err := bus.Subscribe(scope, func(ev Event) {
		if first {
			first = false
			panic("boom")
		}
		got <- ev
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Publish(scope, insertEvent(t, KindMessage, 1))
	bus.Publish(scope, insertEvent(t, KindMessage, 2))
	if ev := collect(t, got, 1)[0]; ev.EntityID != "2" {
		t.Fatalf("expected second event, got %s", ev.EntityID)
	}
}

// memHub connects memRelays in-process
type memHub struct {
	mu       sync.Mutex
	handlers []func([]byte)
}

type memRelay struct{ hub *memHub }

func (r *memRelay) Publish(_ context.Context, payload []byte) error {
	r.hub.mu.Lock()
	handlers := append([]func([]byte){}, r.hub.handlers...)
	r.hub.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (r *memRelay) Subscribe(_ context.Context, handle func([]byte)) error {
	r.hub.mu.Lock()
	r.hub.handlers = append(r.hub.handlers, handle)
	r.hub.mu.Unlock()
	return nil
}

func (r *memRelay) Close() error { return nil }

func TestBus_RelayReachesOtherInstancesOnce(t *testing.T) {
	hub := &memHub{}
	ctx := context.Background()

	a := NewBus(WithRelay(&memRelay{hub: hub}))
	b := NewBus(WithRelay(&memRelay{hub: hub}))
	for _, bus := range []*Bus{a, b} {
		if err := bus.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		defer bus.Close()
	}

	scope := ConversationScope(5)
	onA := make(chan Event, 4)
	onB := make(chan Event, 4)
	if _, err := a.Subscribe(scope, func(ev Event) { onA <- ev }); err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	if _, err := b.Subscribe(scope, func(ev Event) { onB <- ev }); err != nil {
		t.Fatalf("subscribe b: %v", err)
	}

	a.Publish(scope, insertEvent(t, KindMessage, 42))

	if ev := collect(t, onB, 1)[0]; ev.EntityID != "42" || ev.Scope != scope {
		t.Fatalf("unexpected relayed event %+v", ev)
	}
	collect(t, onA, 1)
	expectNone(t, onA)
	expectNone(t, onB)
}

func TestBus_DropsMalformedRelayPayload(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	got := make(chan Event, 1)
	if _, err := bus.Subscribe(ConversationScope(1), func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	bus.onRelay([]byte("not json"))
	bus.onRelay([]byte(`{"origin":"other","event":{"type":"insert","scope":"nope"}}`))
	expectNone(t, got)
}
