package notify

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/pkg/logger"
)

// RedisPublisher publishes messages on a Redis channel so that every API
// instance can reach its own connections.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher constructs a RedisPublisher.
func NewRedisPublisher(client redis.UniversalClient, channel string) RedisPublisher {
	return RedisPublisher{client: client, channel: channel}
}

// Notify publishes msg as JSON.
func (p RedisPublisher) Notify(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// RedisRelay forwards messages published on a Redis channel into a local sink.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	local   Sink
	log     *logger.Logger
}

// NewRedisRelay constructs a RedisRelay delivering into local.
func NewRedisRelay(client redis.UniversalClient, channel string, local Sink, log *logger.Logger) RedisRelay {
	if log == nil {
		log = logger.Nop()
	}
	return RedisRelay{client: client, channel: channel, local: local, log: log}
}

// Run relays messages until ctx is cancelled.
func (r RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("notification relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, m.Payload)
		}
	}
}

func (r RedisRelay) deliver(ctx context.Context, payload string) {
	var msg domain.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.log.Warn("dropping malformed notification", "error", err)
		return
	}
	if err := r.local.Notify(ctx, msg); err != nil {
		r.log.Warn("local notification delivery failed", "receiver_id", msg.ReceiverID, "error", err)
	}
}
