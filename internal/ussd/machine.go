// Package ussd reconstructs multi-turn USSD dialogues from independent HTTP
// hits and correlates suspended HTTP requests with asynchronous replies.
package ussd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/session"
)

// Hit is one inbound vendor request on the normal USSD flow.
type Hit struct {
	SessionID string
	FromAddr  string
	Input     string
}

// Turn is what a hit means for the dialogue.
type Turn struct {
	Event    bus.SessionEvent
	ToAddr   string
	FromAddr string
	Content  string
	Session  *session.Session
}

// Machine derives NEW/RESUME/CLOSE from hits against a shared Store. It keeps
// no session state of its own; every call is a fresh read-modify-write.
type Machine struct {
	store     session.Store
	delimiter string
	logger    *slog.Logger
}

// NewMachine creates a state machine on store. An empty delimiter defaults
// to DefaultDelimiter.
func NewMachine(store session.Store, delimiter string, logger *slog.Logger) *Machine {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		store:     store,
		delimiter: delimiter,
		logger:    logger,
	}
}

// Store returns the backing session store.
func (m *Machine) Store() session.Store {
	return m.store
}

// Begin records the hit and returns the resulting turn. The first hit for a
// session id creates the session with to_addr taken from the dialed code and
// empty content. Later hits reuse the stored to_addr and carry the last input
// segment.
func (m *Machine) Begin(ctx context.Context, hit Hit) (Turn, error) {
	var turn Turn

	saved, err := m.store.Update(ctx, hit.SessionID, func(cur *session.Session) (*session.Session, error) {
		if cur == nil {
			s := session.NewSession(hit.SessionID)
			s.ToAddr = DialedCode(hit.Input)
			s.FromAddr = hit.FromAddr
			s.LastSessionEvent = string(bus.SessionNew)
			turn = Turn{
				Event:    bus.SessionNew,
				ToAddr:   s.ToAddr,
				FromAddr: s.FromAddr,
			}
			return s, nil
		}

		if cur.FromAddr == "" {
			cur.FromAddr = hit.FromAddr
		}
		cur.LastSessionEvent = string(bus.SessionResume)
		turn = Turn{
			Event:    bus.SessionResume,
			ToAddr:   cur.ToAddr,
			FromAddr: cur.FromAddr,
			Content:  LastInput(hit.Input, m.delimiter),
		}
		return cur, nil
	})
	if err != nil {
		return Turn{}, fmt.Errorf("begin turn for session %s: %w", hit.SessionID, err)
	}

	turn.Session = saved
	m.logger.Debug("ussd turn",
		"session_id", hit.SessionID,
		"event", turn.Event,
		"to_addr", turn.ToAddr)
	return turn, nil
}

// Close removes the session and returns what was stored, or nil when the
// session was unknown.
func (m *Machine) Close(ctx context.Context, sessionID string) (*session.Session, error) {
	var closed *session.Session
	_, err := m.store.Update(ctx, sessionID, func(cur *session.Session) (*session.Session, error) {
		closed = cur
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("close session %s: %w", sessionID, err)
	}
	if closed != nil {
		closed.LastSessionEvent = string(bus.SessionClose)
	}
	return closed, nil
}

// End removes the session after a reply that does not continue it.
func (m *Machine) End(ctx context.Context, sessionID string) error {
	if _, err := m.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	return nil
}
