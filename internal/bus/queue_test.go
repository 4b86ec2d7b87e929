package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewMessageBus(t *testing.T) {
	bus := NewMessageBus(10)
	if bus == nil {
		t.Fatal("NewMessageBus returned nil")
	}
	if bus.Type() != "memory" {
		t.Errorf("Type() = %q, want %q", bus.Type(), "memory")
	}
	if n := bus.SubscriberCount("airtel.inbound"); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "airtel.inbound")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	msg := NewUserMessage("airtel", TransportUSSD)
	msg.Content = "hello"
	if err := bus.Publish(ctx, "airtel.inbound", msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-ch:
		if d.RoutingKey != "airtel.inbound" {
			t.Errorf("RoutingKey = %q, want %q", d.RoutingKey, "airtel.inbound")
		}
		if d.Message.Content != "hello" {
			t.Errorf("Content = %q, want %q", d.Message.Content, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery received")
	}
}

func TestPublishFansOutByRoutingKey(t *testing.T) {
	bus := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := bus.Subscribe(ctx, "sms.ack.vas2nets")
	b, _ := bus.Subscribe(ctx, "sms.ack.vas2nets")
	other, _ := bus.Subscribe(ctx, "sms.receipt.vas2nets")

	if err := bus.Publish(ctx, "sms.ack.vas2nets", NewEvent("vas2nets", EventAck, "1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, ch := range []<-chan Delivery{a, b} {
		select {
		case d := <-ch:
			if d.Message.UserMessageID != "1" {
				t.Errorf("subscriber %d: UserMessageID = %q, want %q", i, d.Message.UserMessageID, "1")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}

	select {
	case d := <-other:
		t.Errorf("unexpected delivery on other key: %+v", d)
	default:
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewMessageBus(1)
	ctx := context.Background()

	err := bus.Publish(ctx, "airtel.inbound", NewUserMessage("airtel", TransportUSSD))
	if !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("Publish with no subscriber = %v, want ErrNoSubscribers", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, _ := bus.Subscribe(subCtx, "airtel.inbound")
	cancel()
	for range ch {
	}
	err = bus.Publish(ctx, "airtel.inbound", Message{})
	if !errors.Is(err, ErrNoSubscribers) {
		t.Errorf("Publish after unsubscribe = %v, want ErrNoSubscribers", err)
	}
}

func TestUnsubscribeOnCancel(t *testing.T) {
	bus := NewMessageBus(1)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, "airtel.outbound")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}
	if n := bus.SubscriberCount("airtel.outbound"); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestCloseFailsPublish(t *testing.T) {
	bus := NewMessageBus(1)
	bus.Close()

	err := bus.Publish(context.Background(), "airtel.inbound", Message{})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if _, err := bus.Subscribe(context.Background(), "airtel.inbound"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

func TestPublishBlockedUntilContextDone(t *testing.T) {
	bus := NewMessageBus(1)
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	if _, err := bus.Subscribe(subCtx, "k"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Fill the buffer so the next publish would block
	if err := bus.Publish(context.Background(), "k", Message{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Publish(ctx, "k", Message{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("blocked Publish = %v, want DeadlineExceeded", err)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	bus := NewMessageBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := bus.Subscribe(ctx, "k")

	var mu sync.Mutex
	var seen []string
	var wg sync.WaitGroup
	wg.Add(2)

	go Dispatch(ctx, ch, nil, func(_ context.Context, msg Message) {
		defer wg.Done()
		if msg.Content == "boom" {
			panic("handler failure")
		}
		mu.Lock()
		seen = append(seen, msg.Content)
		mu.Unlock()
	})

	bus.Publish(ctx, "k", Message{Content: "boom"})
	bus.Publish(ctx, "k", Message{Content: "after"})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "after" {
		t.Errorf("seen = %v, want [after]", seen)
	}
}

func TestReply(t *testing.T) {
	msg := NewUserMessage("airtel", TransportUSSD)
	msg.ToAddr = "*121#"
	msg.FromAddr = "27761234567"
	msg.SessionEvent = SessionNew
	msg.TransportMetadata = map[string]map[string]string{"airtel": {"MSC": "msc"}}

	reply := msg.Reply("ussd message", true)
	if reply.InReplyTo != msg.MessageID {
		t.Errorf("InReplyTo = %q, want %q", reply.InReplyTo, msg.MessageID)
	}
	if reply.ToAddr != "27761234567" || reply.FromAddr != "*121#" {
		t.Errorf("addresses not swapped: to=%q from=%q", reply.ToAddr, reply.FromAddr)
	}
	if reply.SessionEvent != SessionResume || !reply.ContinueSession {
		t.Errorf("continue reply = %q/%v", reply.SessionEvent, reply.ContinueSession)
	}
	if got := reply.Metadata("airtel")["MSC"]; got != "msc" {
		t.Errorf("metadata MSC = %q, want %q", got, "msc")
	}

	end := msg.Reply("bye", false)
	if end.SessionEvent != SessionClose || end.ContinueSession {
		t.Errorf("end reply = %q/%v", end.SessionEvent, end.ContinueSession)
	}
}

func TestRoutingKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{InboundKey("airtel"), "airtel.inbound"},
		{OutboundKey("airtel"), "airtel.outbound"},
		{EventKey("airtel"), "airtel.event"},
		{SMSInboundKey("vas2nets", "9292"), "sms.inbound.vas2nets.9292"},
		{SMSReceiptKey("vas2nets"), "sms.receipt.vas2nets"},
		{SMSAckKey("vas2nets"), "sms.ack.vas2nets"},
		{SMSOutboundKey("vas2nets"), "sms.outbound.vas2nets"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("routing key = %q, want %q", tt.got, tt.want)
		}
	}
}
