package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned when publishing to or subscribing on a closed broker.
	ErrClosed = errors.New("bus: broker is closed")
	// ErrNoSubscribers is returned by fan-out brokers when nobody listens on
	// the routing key, so the message reached no one.
	ErrNoSubscribers = errors.New("bus: no subscribers")
)

// Publisher is the only bus capability the transports need on the hot path.
// Publish must fail loudly: a message that could not be handed to the broker
// is reported as an error, never dropped silently.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg Message) error
}

// Broker is a Publisher that can also deliver messages by routing key.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, routingKey string) (<-chan Delivery, error)
	Close() error
	Type() string
}

// MessageBus is an in-process Broker. Each subscription gets its own buffered
// channel; Publish fans a message out to every subscriber of its routing key.
// Publishing on a key nobody subscribes to fails with ErrNoSubscribers.
type MessageBus struct {
	bufferSize  int
	subscribers map[string][]chan Delivery
	mu          sync.RWMutex

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMessageBus creates a new MessageBus whose subscriptions buffer up to
// bufferSize deliveries.
func NewMessageBus(bufferSize int) *MessageBus {
	return &MessageBus{
		bufferSize:  bufferSize,
		subscribers: make(map[string][]chan Delivery),
		closed:      make(chan struct{}),
	}
}

// Publish delivers msg to all current subscribers of routingKey. It blocks
// while a subscriber's buffer is full, until ctx is done or the bus closes.
// With no subscriber it fails with ErrNoSubscribers.
func (b *MessageBus) Publish(ctx context.Context, routingKey string, msg Message) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subscribers[routingKey]
	if len(subs) == 0 {
		return fmt.Errorf("publish to %s: %w", routingKey, ErrNoSubscribers)
	}

	d := Delivery{RoutingKey: routingKey, Message: msg}
	for _, ch := range subs {
		select {
		case ch <- d:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return ErrClosed
		}
	}
	return nil
}

// Subscribe registers interest in routingKey. The returned channel is closed
// when ctx is cancelled or the bus is closed.
func (b *MessageBus) Subscribe(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	select {
	case <-b.closed:
		return nil, ErrClosed
	default:
	}

	ch := make(chan Delivery, b.bufferSize)

	b.mu.Lock()
	b.subscribers[routingKey] = append(b.subscribers[routingKey], ch)
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.closed:
		}
		b.unsubscribe(routingKey, ch)
	}()

	return ch, nil
}

func (b *MessageBus) unsubscribe(routingKey string, ch chan Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[routingKey]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[routingKey] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.subscribers[routingKey]) == 0 {
		delete(b.subscribers, routingKey)
	}
}

// SubscriberCount returns the number of live subscriptions on routingKey.
func (b *MessageBus) SubscriberCount(routingKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[routingKey])
}

// Close closes the bus. Pending and future publishes fail with ErrClosed.
func (b *MessageBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return nil
}

// Type identifies the broker implementation.
func (b *MessageBus) Type() string {
	return "memory"
}

// Dispatch calls fn for every delivery until the channel closes or ctx is
// done. A panicking handler is logged and does not stop the loop.
func Dispatch(ctx context.Context, deliveries <-chan Delivery, logger *slog.Logger, fn func(context.Context, Message)) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("bus handler panicked",
							"routing_key", d.RoutingKey,
							"message_id", d.Message.MessageID,
							"panic", r)
					}
				}()
				fn(ctx, d.Message)
			}()
		}
	}
}
