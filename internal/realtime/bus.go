package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultQueueSize  = 64
	defaultOutboxSize = 1024
	relayPublishWait  = 2 * time.Second
)

var (
	ErrBusClosed          = errors.New("realtime: bus closed")
	ErrSubscriptionClosed = errors.New("realtime: subscription closed")
	ErrNilHandler         = errors.New("realtime: nil handler")
)

// Handler receives events of one subscription. It runs on the subscription's
// own goroutine, so a slow handler only affects its own queue.
type Handler func(Event)

// Option configures a Bus
type Option func(*Bus)

// WithQueueSize sets the per-subscription buffer; events beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithRelay forwards local publishes to other instances and dispatches theirs locally.
func WithRelay(r Relay) Option {
	return func(b *Bus) { b.relay = r }
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Bus fans committed writes out to every live subscription of a scope.
// Publishing never blocks on subscribers: each subscription owns a bounded
// queue and a delivery goroutine.
type Bus struct {
	mu     sync.Mutex
	subs   map[Scope]map[string]*Subscription
	closed bool

	queueSize int
	relay     Relay
	origin    string
	outbox    chan Event
	stop      context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewBus constructs a Bus. Call Start to connect the relay, if any.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[Scope]map[string]*Subscription),
		queueSize: DefaultQueueSize,
		origin:    uuid.NewString(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.relay != nil {
		b.outbox = make(chan Event, defaultOutboxSize)
	}
	return b
}

// Start subscribes to the relay and launches the relay publisher. It is a
// no-op without a relay.
func (b *Bus) Start(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	b.stop = cancel

	if err := b.relay.Subscribe(ctx, b.onRelay); err != nil {
		cancel()
		return err
	}

	b.wg.Add(1)
	go b.forward(ctx)
	return nil
}

// Subscribe registers handler on scope. The subscription is live when this returns.
func (b *Bus) Subscribe(scope Scope, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if _, _, _, err := ParseScope(string(scope)); err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		scope:   scope,
		bus:     b,
		handler: handler,
		queue:   make(chan Event, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	set := b.subs[scope]
	if set == nil {
		set = make(map[string]*Subscription)
		b.subs[scope] = set
	}
	set[sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return sub, nil
}

// Unsubscribe removes the subscription. It is idempotent and may be called
// from inside the subscription's own handler.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		close(sub.done)
		b.mu.Lock()
		b.removeLocked(sub)
		b.mu.Unlock()
	})
}

// Publish delivers ev to local subscribers of scope and hands it to the relay.
// Callers publish only after the underlying write committed.
func (b *Bus) Publish(scope Scope, ev Event) {
	ev.Scope = scope
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now().UTC()
	}
	b.dispatch(ev)

	if b.outbox == nil {
		return
	}
	select {
	case b.outbox <- ev:
	default:
		b.logger.Warn("relay outbox full, event not forwarded", "scope", scope, "kind", ev.Kind, "id", ev.EntityID)
	}
}

// SubscriberCount returns the number of live subscriptions on scope
func (b *Bus) SubscriberCount(scope Scope) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[scope])
}

// Close ends every subscription and disconnects the relay.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for _, sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		b.Unsubscribe(sub)
	}

	if b.stop != nil {
		b.stop()
		b.wg.Wait()
	}
	if b.relay != nil {
		if err := b.relay.Close(); err != nil {
			b.logger.Error("close relay", "error", err)
		}
	}
}

// dispatch enqueues ev for every local subscriber of its scope. The lock
// gives all subscribers of a scope the same publish order.
func (b *Bus) dispatch(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[ev.Scope] {
		sub.enqueue(ev)
	}
}

func (b *Bus) removeLocked(sub *Subscription) {
	set := b.subs[sub.scope]
	if set == nil {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(b.subs, sub.scope)
	}
}

func (b *Bus) forward(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.outbox:
			payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
			if err != nil {
				b.logger.Error("encode relay envelope", "error", err)
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, relayPublishWait)
			if err := b.relay.Publish(pctx, payload); err != nil {
				b.logger.Error("relay publish", "scope", ev.Scope, "error", err)
			}
			cancel()
		}
	}
}

func (b *Bus) onRelay(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("drop malformed relay payload", "error", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	if _, _, _, err := ParseScope(string(env.Event.Scope)); err != nil {
		b.logger.Warn("drop relay event with bad scope", "scope", env.Event.Scope)
		return
	}
	b.dispatch(env.Event)
}

// Subscription is a live registration on one scope
type Subscription struct {
	id      string
	scope   Scope
	bus     *Bus
	handler Handler
	queue   chan Event
	done    chan struct{}
	once    sync.Once

	dropped atomic.Uint64
	resync  atomic.Bool
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) Scope() Scope { return s.scope }

// Dropped counts events discarded because the queue was full
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close is the same as Bus.Unsubscribe(s)
func (s *Subscription) Close() { s.bus.Unsubscribe(s) }

// Closed reports whether the subscription has been released
func (s *Subscription) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) enqueue(ev Event) {
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
		s.resync.Store(true)
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.queue:
			if s.resync.CompareAndSwap(true, false) {
				if err := s.deliver(Event{Type: EventResync, Scope: s.scope, PublishedAt: time.Now().UTC()}); err != nil {
					return
				}
			}
			if err := s.deliver(ev); err != nil {
				return
			}
		}
	}
}

// deliver drops events that arrive after Close.
func (s *Subscription) deliver(ev Event) (err error) {
	if s.Closed() {
		return ErrSubscriptionClosed
	}
	defer func() {
		if p := recover(); p != nil {
			s.bus.logger.Error("subscription handler panicked", "scope", s.scope, "panic", p)
		}
	}()
	s.handler(ev)
	return nil
}
