package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker over Redis PUBLISH/SUBSCRIBE. Messages are
// JSON encoded; the routing key is the Redis channel name.
type RedisBroker struct {
	client     *redis.Client
	bufferSize int
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRedisBroker creates a broker on an existing client. The client is not
// closed by Close; its owner closes it.
func NewRedisBroker(client *redis.Client, bufferSize int, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{
		client:     client,
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Publish sends msg on the routingKey channel. Redis pub/sub does not keep
// messages, so a publish no client received fails with ErrNoSubscribers.
func (b *RedisBroker) Publish(ctx context.Context, routingKey string, msg Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	receivers, err := b.client.Publish(ctx, routingKey, data).Result()
	if err != nil {
		return fmt.Errorf("redis publish to %s: %w", routingKey, err)
	}
	if receivers == 0 {
		return fmt.Errorf("redis publish to %s: %w", routingKey, ErrNoSubscribers)
	}
	return nil
}

// Subscribe listens on the routingKey channel until ctx is cancelled.
func (b *RedisBroker) Subscribe(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	pubsub := b.client.Subscribe(ctx, routingKey)
	// Wait for the subscription confirmation so messages published right
	// after Subscribe returns are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", routingKey, err)
	}

	out := make(chan Delivery, b.bufferSize)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Warn("dropping undecodable bus message", "routing_key", raw.Channel, "err", err)
					continue
				}
				select {
				case out <- Delivery{RoutingKey: raw.Channel, Message: msg}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close marks the broker closed.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Type identifies the broker implementation.
func (b *RedisBroker) Type() string {
	return "redis"
}
