package ussd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hkuds/ugate/internal/bus"
)

var (
	// ErrReplyTimeout is returned by Wait when no reply arrived in time, and
	// by Resolve for a reply whose request already timed out.
	ErrReplyTimeout = errors.New("ussd: reply timeout")
	// ErrUnknownReply is returned by Resolve when nothing waits for the reply.
	ErrUnknownReply = errors.New("ussd: no request waiting for reply")
)

// DefaultReplyTimeout bounds how long an inbound request waits for its reply.
const DefaultReplyTimeout = 30 * time.Second

// expiredRetention is how long a timed-out id is remembered so its late reply
// can be told apart from a reply meant for another replica.
const expiredRetention = 10 * time.Minute

// Waiter is one suspended HTTP request.
type Waiter struct {
	id       string
	replies  chan bus.Message
	p        *Pending
	resolved bool
}

// ID returns the message id the waiter is correlated on.
func (w *Waiter) ID() string {
	return w.id
}

// Wait blocks until the reply arrives, ctx is done, or timeout elapses.
// A timeout of 0 waits for ctx only.
func (w *Waiter) Wait(ctx context.Context, timeout time.Duration) (bus.Message, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case reply := <-w.replies:
		return reply, nil
	case <-expired:
		if !w.p.expire(w) {
			return <-w.replies, nil
		}
		return bus.Message{}, fmt.Errorf("message %s: %w", w.id, ErrReplyTimeout)
	case <-ctx.Done():
		if !w.p.expire(w) {
			return <-w.replies, nil
		}
		return bus.Message{}, ctx.Err()
	}
}

// Pending correlates outbound replies with the inbound requests waiting on
// them, keyed by the inbound message id.
type Pending struct {
	mu      sync.Mutex
	waiters map[string]*Waiter
	expired map[string]time.Time
	now     func() time.Time
}

// NewPending creates an empty registry.
func NewPending() *Pending {
	return &Pending{
		waiters: make(map[string]*Waiter),
		expired: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Register suspends a request on message id.
func (p *Pending) Register(id string) *Waiter {
	w := &Waiter{
		id:      id,
		replies: make(chan bus.Message, 1),
		p:       p,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune()
	p.waiters[id] = w
	return w
}

// Resolve hands reply to the request it answers. It returns ErrReplyTimeout
// when that request already gave up and ErrUnknownReply when no request on
// this registry ever waited for it.
func (p *Pending) Resolve(reply bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.waiters[reply.InReplyTo]
	if !ok {
		if _, late := p.expired[reply.InReplyTo]; late {
			delete(p.expired, reply.InReplyTo)
			return fmt.Errorf("reply to %s: %w", reply.InReplyTo, ErrReplyTimeout)
		}
		return fmt.Errorf("reply to %s: %w", reply.InReplyTo, ErrUnknownReply)
	}
	delete(p.waiters, reply.InReplyTo)
	w.resolved = true
	w.replies <- reply
	return nil
}

// Cancel drops the waiter for id without remembering it.
func (p *Pending) Cancel(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, id)
}

// Len returns the number of suspended requests.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// expire reports false when the waiter was already resolved, in which case
// its reply is buffered.
func (p *Pending) expire(w *Waiter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w.resolved {
		return false
	}
	if p.waiters[w.id] == w {
		delete(p.waiters, w.id)
		p.expired[w.id] = p.now()
	}
	return true
}

// Prune forgets timed-out requests older than the late-reply retention window.
func (p *Pending) Prune() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune()
}

// Caller must hold p.mu
func (p *Pending) prune() {
	cutoff := p.now().Add(-expiredRetention)
	for id, at := range p.expired {
		if at.Before(cutoff) {
			delete(p.expired, id)
		}
	}
}
