package transports

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/fields"
	"github.com/hkuds/ugate/internal/metrics"
	"github.com/hkuds/ugate/internal/msisdn"
)

const (
	vas2netsTimeLayout = "2006.01.02 15:04:05"
	isoTimeLayout      = "2006-01-02T15:04:05"
	headerSMSID        = "X-Nth-Smsid"
)

var (
	vas2netsReceiveSchema = fields.Schema{
		Required: []string{"messageid", "time", "sender", "destination", "provider", "keyword", "header", "text"},
	}
	vas2netsReceiptSchema = fields.Schema{
		Required: []string{"smsid", "messageid", "sender", "time", "status", "text"},
		Optional: map[string]string{"provider": ""},
	}
)

// deliveryStatuses maps Vas2Nets receipt status codes to delivery report states.
var deliveryStatuses = map[string]string{
	"1": "pending",
	"2": "delivered",
}

// Vas2NetsTransport is the Vas2Nets SMS transport.
type Vas2NetsTransport struct {
	BaseTransport
	cfg    config.Vas2NetsConfig
	client *http.Client
	tracer trace.Tracer
}

// NewVas2NetsTransport creates the transport. A nil tracer disables tracing.
func NewVas2NetsTransport(cfg config.Vas2NetsConfig, broker bus.Broker, tracer trace.Tracer, logger *slog.Logger) *Vas2NetsTransport {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("vas2nets")
	}
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Vas2NetsTransport{
		BaseTransport: NewBaseTransport(cfg.TransportName, string(bus.TransportSMS), broker, logger),
		cfg:           cfg,
		client:        &http.Client{Timeout: timeout},
		tracer:        tracer,
	}
}

// Start consumes outbound SMS for this vendor.
func (t *Vas2NetsTransport) Start(ctx context.Context) error {
	return t.consume(ctx, bus.SMSOutboundKey(t.name), func(ctx context.Context, msg bus.Message) {
		if _, err := t.Send(ctx, msg); err != nil {
			t.logger.Error("outbound send failed", "message_id", msg.MessageID, "err", err)
		}
	})
}

// Routes mounts the receive and receipt endpoints.
func (t *Vas2NetsTransport) Routes(r gin.IRouter) {
	r.POST(t.cfg.WebReceivePath, t.handleReceive)
	r.GET(t.cfg.WebReceivePath, t.handleReceive)
	r.POST(t.cfg.WebReceiptPath, t.handleReceipt)
	r.GET(t.cfg.WebReceiptPath, t.handleReceipt)
}

// isoTimestamp converts the vendor's timestamp to ISO 8601 without zone.
func isoTimestamp(raw string) (string, error) {
	ts, err := time.Parse(vas2netsTimeLayout, raw)
	if err != nil {
		return "", err
	}
	return ts.Format(isoTimeLayout), nil
}

func (t *Vas2NetsTransport) parse(c *gin.Context, schema fields.Schema, values url.Values) (map[string]string, bool) {
	params, err := schema.Parse(values, fields.Permissive)
	if err != nil {
		var verr *fields.ValidationError
		if errors.As(err, &verr) {
			t.logger.Warn("rejected request", "err", err)
			t.count(metrics.ResultInvalid)
			c.JSON(http.StatusBadRequest, verr.Body())
			return nil, false
		}
		t.count(metrics.ResultError)
		internalError(c)
		return nil, false
	}

	if _, err := isoTimestamp(params["time"]); err != nil {
		t.logger.Warn("rejected request", "err", err)
		t.count(metrics.ResultInvalid)
		c.JSON(http.StatusBadRequest, map[string][]string{"invalid_parameter": {"time"}})
		return nil, false
	}
	return params, true
}

func (t *Vas2NetsTransport) handleReceive(c *gin.Context) {
	params, ok := t.parse(c, vas2netsReceiveSchema, t.requestValues(c))
	if !ok {
		return
	}
	ts, _ := isoTimestamp(params["time"])

	msg := bus.NewUserMessage(t.name, bus.TransportSMS)
	msg.TransportMessageID = params["messageid"]
	msg.TransportTimestamp = ts
	msg.TransportNetworkID = params["provider"]
	msg.TransportKeyword = params["keyword"]
	msg.ToAddr = msisdn.Normalize(params["destination"], t.cfg.CountryCode)
	msg.FromAddr = msisdn.Normalize(params["sender"], t.cfg.CountryCode)
	msg.Content = params["text"]
	if h := params["header"]; h != "" {
		msg.TransportMetadata = map[string]map[string]string{"vas2nets": {"header": h}}
	}

	if err := t.publish(c.Request.Context(), bus.SMSInboundKey(t.name, params["destination"]), msg); err != nil {
		t.count(metrics.ResultError)
		internalError(c)
		return
	}

	t.count(metrics.ResultOK)
	c.Header(headerSMSID, params["messageid"])
	plain(c, http.StatusOK, "")
}

func (t *Vas2NetsTransport) handleReceipt(c *gin.Context) {
	params, ok := t.parse(c, vas2netsReceiptSchema, t.requestValues(c))
	if !ok {
		return
	}
	ts, _ := isoTimestamp(params["time"])

	event := bus.NewEvent(t.name, bus.EventDeliveryReport, params["messageid"])
	event.TransportType = bus.TransportSMS
	event.TransportMessageID = params["smsid"]
	event.TransportStatus = params["status"]
	event.TransportStatusMessage = params["text"]
	event.TransportNetworkID = params["provider"]
	event.TransportTimestamp = ts
	event.ToAddr = msisdn.Normalize(params["sender"], t.cfg.CountryCode)
	event.DeliveryStatus = deliveryStatuses[params["status"]]
	if event.DeliveryStatus == "" {
		event.DeliveryStatus = "failed"
	}

	if err := t.publish(c.Request.Context(), bus.SMSReceiptKey(t.name), event); err != nil {
		t.count(metrics.ResultError)
		internalError(c)
		return
	}

	t.count(metrics.ResultOK)
	plain(c, http.StatusOK, "")
}

func (t *Vas2NetsTransport) count(result string) {
	metrics.InboundRequests.WithLabelValues(t.name, result).Inc()
}
