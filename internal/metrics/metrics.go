package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inbound request results.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid"
	ResultForbidden = "forbidden"
	ResultError     = "error"
	ResultTimeout   = "timeout"
	ResultUnknown   = "unknown_session"
)

var (
	// Vendor HTTP metrics
	InboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_inbound_requests_total",
		Help: "The total number of vendor HTTP requests handled, by result.",
	}, []string{"transport", "result"})
	OutboundSends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_outbound_sends_total",
		Help: "The total number of messages sent to vendors, by result.",
	}, []string{"transport", "result"})

	// Bus metrics
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_messages_published_total",
		Help: "The total number of canonical messages published to the bus.",
	}, []string{"transport", "routing_key"})

	// Session metrics
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_session_events_total",
		Help: "The total number of USSD session lifecycle events.",
	}, []string{"transport", "event"})
	PendingReplies = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ugate_pending_replies",
		Help: "The current number of HTTP requests waiting for a reply.",
	}, []string{"transport"})
	ReplyTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_reply_timeouts_total",
		Help: "The total number of requests that gave up waiting for a reply.",
	}, []string{"transport"})

	// Housekeeping metrics
	HousekeepingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ugate_housekeeping_runs_total",
		Help: "The total number of scheduled housekeeping runs, by result.",
	}, []string{"job", "result"})
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ugate_sessions_swept_total",
		Help: "The total number of expired in-memory sessions reclaimed.",
	})
)
