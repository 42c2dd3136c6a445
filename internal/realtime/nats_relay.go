package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultNatsSubject is the subject shared by all instances
const DefaultNatsSubject = "collab.bus"

// NatsRelay relays bus events over core NATS subjects
type NatsRelay struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	logger  *slog.Logger
}

// NewNatsRelay connects to NATS (nats.DefaultURL when url is empty)
func NewNatsRelay(url, subject string) (*NatsRelay, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("collab-sync"))
	if err != nil {
		return nil, fmt.Errorf("nats relay: connect: %w", err)
	}
	if subject == "" {
		subject = DefaultNatsSubject
	}
	return &NatsRelay{nc: nc, subject: subject, logger: slog.Default().With("relay", "nats")}, nil
}

func (r *NatsRelay) Publish(_ context.Context, payload []byte) error {
	return r.nc.Publish(r.subject, payload)
}

func (r *NatsRelay) Subscribe(_ context.Context, handle func(payload []byte)) error {
	sub, err := r.nc.Subscribe(r.subject, func(m *nats.Msg) {
		handle(m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats relay: subscribe %s: %w", r.subject, err)
	}
	if err := r.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats relay: flush: %w", err)
	}
	r.sub = sub
	r.logger.Info("subscribed", "subject", r.subject)
	return nil
}

func (r *NatsRelay) Close() error {
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe", "error", err)
		}
	}
	return r.nc.Drain()
}
