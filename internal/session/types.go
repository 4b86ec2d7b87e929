package session

import (
	"time"
)

// Session is the continuity state of one USSD dialogue.
type Session struct {
	ID               string            `json:"session_id"`
	ToAddr           string            `json:"to_addr"`
	FromAddr         string            `json:"from_addr"`
	LastSessionEvent string            `json:"last_session_event"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Attributes       map[string]string `json:"attributes,omitempty"`
}

// NewSession creates a new session with the given id
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		UpdatedAt:  now,
		Attributes: make(map[string]string),
	}
}

// Get returns an ad-hoc attribute, or "" when unset.
func (s *Session) Get(key string) string {
	if s.Attributes == nil {
		return ""
	}
	return s.Attributes[key]
}

// Set stores an ad-hoc attribute.
func (s *Session) Set(key, value string) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]string)
	}
	s.Attributes[key] = value
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Attributes != nil {
		c.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}
