package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"bgtask/internal/config"
)

// Publisher delivers events to listeners.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewPublisher builds a Redis publisher when events are enabled in cfg.
// Otherwise a noop implementation is returned.
func NewPublisher(cfg *config.Config) Publisher {
	if cfg == nil || !cfg.Events.Enabled {
		return Nop()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
	pub := NewRedisPublisher(client, cfg.Events.Channel)
	pub.ownsClient = true
	return pub
}

// Nop returns a Publisher that drops every event.
func Nop() Publisher {
	return noopPublisher{}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

func (noopPublisher) Close() error { return nil }

// RedisPublisher sends JSON encoded events to a Redis pub/sub channel.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	ownsClient bool
}

// NewRedisPublisher wraps an existing client. Close leaves the client open.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = config.DefaultEventsChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Channel returns the pub/sub channel events are sent to.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.client == nil {
		return errors.New("redis publisher unavailable")
	}
	payload, err := sonic.MarshalString(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if p == nil || !p.ownsClient || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Subscribe delivers events from channel to handler until ctx is cancelled.
// Messages that do not decode as events are skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string, handler func(Event)) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Event
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				continue
			}
			handler(ev)
		}
	}
}
