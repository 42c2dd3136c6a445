package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the change kind carried by an event
type EventType string

const (
	// EventInsert mirrors a committed row insert.
	EventInsert EventType = "insert"
	// EventResync tells the subscriber that events were dropped and it must
	// re-fetch the scope.
	EventResync EventType = "resync"
)

// Entity kinds
const (
	KindMessage      = "message"
	KindNotification = "notification"
	KindMembership   = "membership"
)

// Event is one delivery on a scope. Data holds the committed entity as JSON so
// the same bytes can go to a websocket or across the relay unchanged.
type Event struct {
	Type        EventType       `json:"type"`
	Scope       Scope           `json:"scope"`
	Kind        string          `json:"kind,omitempty"`
	EntityID    string          `json:"id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}

// NewInsertEvent encodes entity into an insert event. The scope is set on publish.
func NewInsertEvent(kind, entityID string, entity any) (Event, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", kind, err)
	}
	return Event{
		Type:     EventInsert,
		Kind:     kind,
		EntityID: entityID,
		Data:     data,
	}, nil
}

// Decode unmarshals the entity carried by the event into v
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s on %s has no data", e.Type, e.Scope)
	}
	return json.Unmarshal(e.Data, v)
}

// dedupKey identifies the entity for subscriber-side de-duplication
func (e Event) dedupKey() string {
	if e.Type != EventInsert || e.EntityID == "" {
		return ""
	}
	return e.Kind + ":" + e.EntityID
}
