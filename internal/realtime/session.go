package realtime

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

const seenCapacity = 1024

// Session is the connection-scoped view of the bus for one client. It owns
// the client's subscriptions, tears all of them down on Close, and drops
// repeated deliveries of the same entity.
type Session struct {
	ID     string
	UserID uint

	bus  *Bus
	sink func(Event)
	seen *seenSet

	mu     sync.Mutex
	subs   map[Scope]*Subscription
	closed bool
}

// NewSession binds a client sink to the bus. sink is called from delivery
// goroutines and must not block for long.
func NewSession(bus *Bus, userID uint, sink func(Event)) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		bus:    bus,
		sink:   sink,
		seen:   newSeenSet(seenCapacity),
		subs:   make(map[Scope]*Subscription),
	}
}

// Subscribe adds scope to the session. Subscribing twice to the same scope
// keeps the existing subscription.
func (s *Session) Subscribe(scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriptionClosed
	}
	if _, ok := s.subs[scope]; ok {
		return nil
	}
	sub, err := s.bus.Subscribe(scope, s.deliver)
	if err != nil {
		return err
	}
	s.subs[scope] = sub
	return nil
}

// Unsubscribe drops scope from the session; unknown scopes are ignored.
func (s *Session) Unsubscribe(scope Scope) {
	s.mu.Lock()
	sub := s.subs[scope]
	delete(s.subs, scope)
	s.mu.Unlock()
	s.bus.Unsubscribe(sub)
}

// Scopes lists the active scopes in lexical order
func (s *Session) Scopes() []Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	scopes := make([]Scope, 0, len(s.subs))
	for scope := range s.subs {
		scopes = append(scopes, scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes
}

// Close releases every subscription. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = make(map[Scope]*Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		s.bus.Unsubscribe(sub)
	}
}

func (s *Session) deliver(ev Event) {
	if key := ev.dedupKey(); key != "" && !s.seen.add(key) {
		return
	}
	s.sink(ev)
}

// seenSet remembers the most recent keys in insertion order.
type seenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
	ring []string
	next int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		keys: make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

// add returns false if key was already present
func (s *seenSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.ring[s.next] = key
	s.keys[key] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}
