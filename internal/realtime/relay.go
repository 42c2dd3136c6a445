package realtime

import "context"

// Relay carries bus events between server instances. Payloads are opaque to
// the relay.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	// Subscribe registers handle and returns once the subscription is active.
	Subscribe(ctx context.Context, handle func(payload []byte)) error
	Close() error
}

// envelope tags a relayed event with the instance that published it so the
// origin does not deliver it twice.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}
