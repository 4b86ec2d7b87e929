package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisBroker(t *testing.T) *RedisBroker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBroker(client, 10, nil)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	b := newTestRedisBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "airtel.outbound")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	msg := NewUserMessage("airtel", TransportUSSD)
	msg.Content = "ussd message"
	msg.InReplyTo = "abc"
	if err := b.Publish(ctx, "airtel.outbound", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-ch:
		if d.RoutingKey != "airtel.outbound" {
			t.Errorf("RoutingKey = %q", d.RoutingKey)
		}
		if d.Message.MessageID != msg.MessageID || d.Message.InReplyTo != "abc" {
			t.Errorf("message = %+v", d.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}
}

func TestRedisBrokerClosed(t *testing.T) {
	b := newTestRedisBroker(t)
	b.Close()

	if err := b.Publish(context.Background(), "k", Message{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if b.Type() != "redis" {
		t.Errorf("Type() = %q", b.Type())
	}
}

func TestRedisBrokerPublishWithoutSubscribers(t *testing.T) {
	b := newTestRedisBroker(t)

	err := b.Publish(context.Background(), "sms.inbound.vas2nets.9292", NewUserMessage("vas2nets", TransportSMS))
	if !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("Publish with no subscriber = %v, want ErrNoSubscribers", err)
	}
}
