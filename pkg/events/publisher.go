// Package events relays lifecycle events over redis pub/sub. The engine
// publishes once per terminal transition; relays (websocket handler,
// external notification services) subscribe. Delivery is fire-and-forget:
// the durable record lives in the process_events table, not here.
package events

import (
	"context"
	"fmt"

	"procgrid/internal/model"
	"procgrid/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// Channel is the redis pub/sub channel lifecycle events go out on.
const Channel = "procgrid:lifecycle"

// Publisher publishes lifecycle events to redis.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a lifecycle event publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends the event to the lifecycle channel. A nil client is a no-op
// so single-instance deployments without redis still function.
func (p *Publisher) Publish(ctx context.Context, ev *model.LifecycleEvent) error {
	if p.client == nil {
		return nil
	}

	payload, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}

	logger.DebugCtx(ctx, "lifecycle event published, process_id: %s, state: %s", ev.ProcessID, ev.State)
	return nil
}

// Subscriber consumes lifecycle events from redis.
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber creates a lifecycle event subscriber.
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe returns a channel of lifecycle events. The channel closes when
// ctx is cancelled. Malformed payloads are logged and skipped.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan *model.LifecycleEvent, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}

	pubsub := s.client.Subscribe(ctx, Channel)
	// Force the subscription to be established before we return.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to lifecycle channel: %w", err)
	}

	out := make(chan *model.LifecycleEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.LifecycleEvent
				if err := ev.FromJSON([]byte(msg.Payload)); err != nil {
					logger.WarnCtx(ctx, "dropping malformed lifecycle event: %v", err)
					continue
				}
				select {
				case out <- &ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
