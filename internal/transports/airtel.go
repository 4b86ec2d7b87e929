package transports

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/fields"
	"github.com/hkuds/ugate/internal/metrics"
	"github.com/hkuds/ugate/internal/session"
	"github.com/hkuds/ugate/internal/ussd"
)

// Airtel reply headers
const (
	headerFreeflow    = "Freeflow"
	freeflowContinue  = "FC"
	freeflowBreak     = "FB"
	headerCharge      = "charge"
	headerAmount      = "amount"
	unknownSessionMsg = "Unknown Session"
)

var (
	airtelCredentials = map[string]string{"userid": "", "password": ""}

	airtelUSSDSchema = fields.Schema{
		Required: []string{"MSISDN", "MSC", "input", "SessionID"},
	}.Extend(airtelCredentials)

	// The cleanup notification carries a lowercase msisdn; the uppercase
	// fields are sometimes present but unreliable.
	airtelCleanupSchema = fields.Schema{
		Required: []string{"msisdn", "SessionID", "error", "clean"},
		Optional: map[string]string{"MSISDN": "", "MSC": ""},
	}.Extend(airtelCredentials)
)

// AirtelTransport is the Airtel USSD transport. Each vendor hit is held open
// until the reply to its inbound message comes back on the bus.
type AirtelTransport struct {
	BaseTransport
	cfg          config.AirtelConfig
	mode         fields.Mode
	machine      *ussd.Machine
	pending      *ussd.Pending
	replyTimeout time.Duration
}

// NewAirtelTransport creates the transport. A store that supports namespacing
// is scoped to the configured session key prefix.
func NewAirtelTransport(cfg config.AirtelConfig, broker bus.Broker, store session.Store, logger *slog.Logger) (*AirtelTransport, error) {
	mode, err := fields.ParseMode(cfg.ValidationMode)
	if err != nil {
		return nil, err
	}
	if ns, ok := store.(session.Namespaced); ok {
		store = ns.Prefixed(cfg.KeyPrefix())
	}

	t := &AirtelTransport{
		BaseTransport: NewBaseTransport(cfg.TransportName, string(bus.TransportUSSD), broker, logger),
		cfg:           cfg,
		mode:          mode,
		pending:       ussd.NewPending(),
		replyTimeout:  cfg.ReplyTimeoutDuration(),
	}
	t.machine = ussd.NewMachine(store, cfg.InputDelimiter, t.logger)
	return t, nil
}

// Sessions returns the transport's scoped session store.
func (t *AirtelTransport) Sessions() session.Store {
	return t.machine.Store()
}

// Start consumes replies on the transport's outbound routing key.
func (t *AirtelTransport) Start(ctx context.Context) error {
	return t.consume(ctx, bus.OutboundKey(t.name), t.handleReply)
}

// Routes mounts the single Airtel endpoint for GET and POST.
func (t *AirtelTransport) Routes(r gin.IRouter) {
	r.GET(t.cfg.WebPath, t.handle)
	r.POST(t.cfg.WebPath, t.handle)
}

func (t *AirtelTransport) authorized(values url.Values) bool {
	if !t.cfg.AuthEnabled() {
		return true
	}
	user := subtle.ConstantTimeCompare([]byte(values.Get("userid")), []byte(t.cfg.Username))
	pass := subtle.ConstantTimeCompare([]byte(values.Get("password")), []byte(t.cfg.Password))
	return user&pass == 1
}

func (t *AirtelTransport) handle(c *gin.Context) {
	values := t.requestValues(c)

	if !t.authorized(values) {
		t.logger.Warn("rejected request", "err", ErrForbidden, "remote", c.ClientIP())
		t.count(metrics.ResultForbidden)
		plain(c, http.StatusForbidden, "Forbidden")
		return
	}

	if values.Has("clean") {
		t.handleCleanup(c, values)
		return
	}
	t.handleUSSD(c, values)
}

// parse writes a 400 and returns false when values do not fit schema.
func (t *AirtelTransport) parse(c *gin.Context, schema fields.Schema, values url.Values) (map[string]string, bool) {
	params, err := schema.Parse(values, t.mode)
	if err == nil {
		return params, true
	}

	var verr *fields.ValidationError
	if errors.As(err, &verr) {
		t.logger.Warn("rejected request", "err", err)
		t.count(metrics.ResultInvalid)
		c.JSON(http.StatusBadRequest, verr.Body())
		return nil, false
	}
	t.logger.Error("parameter parse failed", "err", err)
	t.count(metrics.ResultError)
	internalError(c)
	return nil, false
}

func (t *AirtelTransport) handleUSSD(c *gin.Context, values url.Values) {
	params, ok := t.parse(c, airtelUSSDSchema, values)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sessionID := params["SessionID"]

	turn, err := t.machine.Begin(ctx, ussd.Hit{
		SessionID: sessionID,
		FromAddr:  params["MSISDN"],
		Input:     params["input"],
	})
	if err != nil {
		t.logger.Error("session store failure", "session_id", sessionID, "err", err)
		t.count(metrics.ResultError)
		internalError(c)
		return
	}
	metrics.SessionEvents.WithLabelValues(t.name, string(turn.Event)).Inc()

	msg := bus.NewUserMessage(t.name, bus.TransportUSSD)
	msg.ToAddr = turn.ToAddr
	msg.FromAddr = turn.FromAddr
	msg.Content = turn.Content
	msg.SessionEvent = turn.Event
	msg.TransportMetadata = map[string]map[string]string{
		"airtel": {"MSC": params["MSC"]},
	}

	waiter := t.pending.Register(msg.MessageID)
	metrics.PendingReplies.WithLabelValues(t.name).Set(float64(t.pending.Len()))
	defer func() {
		metrics.PendingReplies.WithLabelValues(t.name).Set(float64(t.pending.Len()))
	}()

	if err := t.publish(ctx, bus.InboundKey(t.name), msg); err != nil {
		t.pending.Cancel(msg.MessageID)
		t.count(metrics.ResultError)
		internalError(c)
		return
	}

	reply, err := waiter.Wait(ctx, t.replyTimeout)
	switch {
	case errors.Is(err, ussd.ErrReplyTimeout):
		t.logger.Warn("reply timeout", "session_id", sessionID, "message_id", msg.MessageID)
		metrics.ReplyTimeouts.WithLabelValues(t.name).Inc()
		t.count(metrics.ResultTimeout)
		plain(c, http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout))
		return
	case err != nil:
		// The vendor hung up; there is nobody left to answer.
		t.logger.Info("request abandoned", "session_id", sessionID, "message_id", msg.MessageID, "err", err)
		t.count(metrics.ResultError)
		return
	}

	t.writeReply(c, reply)
	t.count(metrics.ResultOK)

	// The reply is written; finish the turn even if the vendor hangs up now.
	done := context.WithoutCancel(ctx)
	if !reply.ContinueSession {
		if err := t.machine.End(done, sessionID); err != nil {
			t.logger.Error("failed to end session", "session_id", sessionID, "err", err)
		} else {
			metrics.SessionEvents.WithLabelValues(t.name, string(bus.SessionClose)).Inc()
		}
	}

	ack := bus.NewEvent(t.name, bus.EventAck, reply.MessageID)
	ack.SentMessageID = reply.MessageID
	if err := t.publish(done, bus.EventKey(t.name), ack); err != nil {
		t.logger.Error("failed to ack reply", "message_id", reply.MessageID, "err", err)
	}
}

func (t *AirtelTransport) writeReply(c *gin.Context, reply bus.Message) {
	freeflow := freeflowContinue
	if !reply.ContinueSession {
		freeflow = freeflowBreak
	}
	c.Header(headerFreeflow, freeflow)
	c.Header(headerCharge, "N")
	c.Header(headerAmount, "0")
	plain(c, http.StatusOK, reply.Content)
}

func (t *AirtelTransport) handleCleanup(c *gin.Context, values url.Values) {
	params, ok := t.parse(c, airtelCleanupSchema, values)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sessionID := params["SessionID"]

	closed, err := t.machine.Close(ctx, sessionID)
	if err != nil {
		t.logger.Error("session store failure", "session_id", sessionID, "err", err)
		t.count(metrics.ResultError)
		internalError(c)
		return
	}
	if closed == nil {
		t.logger.Info("cleanup for unknown session", "session_id", sessionID)
		t.count(metrics.ResultUnknown)
		plain(c, http.StatusOK, unknownSessionMsg)
		return
	}
	metrics.SessionEvents.WithLabelValues(t.name, string(bus.SessionClose)).Inc()

	msg := bus.NewUserMessage(t.name, bus.TransportUSSD)
	msg.ToAddr = closed.ToAddr
	msg.FromAddr = closed.FromAddr
	msg.SessionEvent = bus.SessionClose
	msg.ContinueSession = false
	msg.TransportMetadata = map[string]map[string]string{
		"airtel": {
			"error": params["error"],
			"clean": params["clean"],
		},
	}

	if err := t.publish(ctx, bus.InboundKey(t.name), msg); err != nil {
		t.count(metrics.ResultError)
		internalError(c)
		return
	}
	t.count(metrics.ResultOK)
	plain(c, http.StatusOK, "")
}

// handleReply resolves the request waiting for reply. A reply nobody here
// waits for belongs to another replica and is ignored.
func (t *AirtelTransport) handleReply(ctx context.Context, reply bus.Message) {
	err := t.pending.Resolve(reply)
	switch {
	case err == nil:
	case errors.Is(err, ussd.ErrReplyTimeout):
		t.logger.Warn("late reply", "message_id", reply.MessageID, "in_reply_to", reply.InReplyTo)
		nack := bus.NewEvent(t.name, bus.EventNack, reply.MessageID)
		nack.SentMessageID = reply.MessageID
		nack.NackReason = "request timed out before the reply arrived"
		if err := t.publish(ctx, bus.EventKey(t.name), nack); err != nil {
			t.logger.Error("failed to nack late reply", "message_id", reply.MessageID, "err", err)
		}
	default:
		t.logger.Debug("reply not pending here", "message_id", reply.MessageID, "in_reply_to", reply.InReplyTo)
	}
}

// Sweep prunes stale late-reply records and refreshes the pending gauge.
func (t *AirtelTransport) Sweep() {
	t.pending.Prune()
	metrics.PendingReplies.WithLabelValues(t.name).Set(float64(t.pending.Len()))
}

func (t *AirtelTransport) count(result string) {
	metrics.InboundRequests.WithLabelValues(t.name, result).Inc()
}
