package bus

import (
	"time"

	"github.com/google/uuid"
)

// SessionEvent marks where a message sits in a USSD dialogue.
type SessionEvent string

const (
	SessionNone   SessionEvent = ""
	SessionNew    SessionEvent = "new"
	SessionResume SessionEvent = "resume"
	SessionClose  SessionEvent = "close"
)

// Message types.
const (
	TypeUserMessage = "user_message"
	TypeEvent       = "event"
)

// Event types carried by messages of TypeEvent.
const (
	EventAck            = "ack"
	EventNack           = "nack"
	EventDeliveryReport = "delivery_report"
)

// Transport types.
const (
	TransportUSSD = "ussd"
	TransportSMS  = "sms"
)

// Message is the vendor independent unit exchanged over the bus. User
// messages and events share the type; event-only fields are empty on user
// messages and vice versa.
type Message struct {
	MessageID     string `json:"message_id"`
	MessageType   string `json:"message_type"`
	TransportName string `json:"transport_name"`
	TransportType string `json:"transport_type"`

	ToAddr          string       `json:"to_addr,omitempty"`
	FromAddr        string       `json:"from_addr,omitempty"`
	Content         string       `json:"content"`
	SessionEvent    SessionEvent `json:"session_event,omitempty"`
	InReplyTo       string       `json:"in_reply_to,omitempty"`
	ContinueSession bool         `json:"continue_session"`

	// TransportMetadata holds vendor passthrough fields keyed by vendor name.
	TransportMetadata map[string]map[string]string `json:"transport_metadata,omitempty"`

	TransportMessageID string `json:"transport_message_id,omitempty"`
	TransportNetworkID string `json:"transport_network_id,omitempty"`
	TransportKeyword   string `json:"transport_keyword,omitempty"`
	TransportTimestamp string `json:"transport_timestamp,omitempty"`

	EventType              string `json:"event_type,omitempty"`
	UserMessageID          string `json:"user_message_id,omitempty"`
	SentMessageID          string `json:"sent_message_id,omitempty"`
	DeliveryStatus         string `json:"delivery_status,omitempty"`
	TransportStatus        string `json:"transport_status,omitempty"`
	TransportStatusMessage string `json:"transport_status_message,omitempty"`
	NackReason             string `json:"nack_reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewUserMessage returns a user message stamped with an id and timestamp.
func NewUserMessage(transportName, transportType string) Message {
	return Message{
		MessageID:       NewMessageID(),
		MessageType:     TypeUserMessage,
		TransportName:   transportName,
		TransportType:   transportType,
		ContinueSession: true,
		Timestamp:       time.Now().UTC(),
	}
}

// NewEvent returns an event about the user message identified by userMessageID.
func NewEvent(transportName, eventType, userMessageID string) Message {
	return Message{
		MessageID:     NewMessageID(),
		MessageType:   TypeEvent,
		TransportName: transportName,
		EventType:     eventType,
		UserMessageID: userMessageID,
		Timestamp:     time.Now().UTC(),
	}
}

// Reply builds the outbound answer to m. A reply that does not continue the
// session carries SessionClose.
func (m Message) Reply(content string, continueSession bool) Message {
	reply := NewUserMessage(m.TransportName, m.TransportType)
	reply.ToAddr = m.FromAddr
	reply.FromAddr = m.ToAddr
	reply.Content = content
	reply.InReplyTo = m.MessageID
	reply.ContinueSession = continueSession
	reply.TransportMetadata = m.TransportMetadata
	if continueSession {
		reply.SessionEvent = SessionResume
	} else {
		reply.SessionEvent = SessionClose
	}
	return reply
}

// Metadata returns the passthrough fields recorded for vendor, or nil.
func (m Message) Metadata(vendor string) map[string]string {
	if m.TransportMetadata == nil {
		return nil
	}
	return m.TransportMetadata[vendor]
}

// Delivery is a message together with the routing key it was published on.
type Delivery struct {
	RoutingKey string  `json:"routing_key"`
	Message    Message `json:"message"`
}
