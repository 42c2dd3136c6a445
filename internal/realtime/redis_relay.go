package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the Pub/Sub channel shared by all instances
const DefaultRedisChannel = "collab:bus"

// RedisRelay relays bus events over Redis Pub/Sub
type RedisRelay struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	logger  *slog.Logger
}

// NewRedisRelay connects to the Redis server at url (redis://host:port/db)
func NewRedisRelay(ctx context.Context, url, channel string) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis relay: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis relay: ping: %w", err)
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisRelay{client: client, channel: channel, logger: slog.Default().With("relay", "redis")}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, handle func(payload []byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// Wait for the subscription confirmation so no publish after Start is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis relay: subscribe %s: %w", r.channel, err)
	}
	r.pubsub = pubsub

	ch := pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handle([]byte(msg.Payload))
			}
		}
	}()
	r.logger.Info("subscribed", "channel", r.channel)
	return nil
}

func (r *RedisRelay) Close() error {
	if r.pubsub != nil {
		if err := r.pubsub.Close(); err != nil {
			r.logger.Warn("close pubsub", "error", err)
		}
	}
	return r.client.Close()
}
