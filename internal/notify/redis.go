package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPublishTimeout bounds one Redis PUBLISH.
const DefaultPublishTimeout = 2 * time.Second

// Publisher forwards events outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher posts events as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	Timeout time.Duration
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "convertbot:events"
	}
	return &RedisPublisher{client: client, channel: channel, Timeout: DefaultPublishTimeout}
}

// Channel returns the channel events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
