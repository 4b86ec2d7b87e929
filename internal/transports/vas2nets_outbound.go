package transports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/linxGnu/gosmpp/data"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/metrics"
	"github.com/hkuds/ugate/internal/msisdn"
)

const resultCodeOK = "00"

// maxResponseBody bounds how much of a vendor response is read.
const maxResponseBody = 64 << 10

var resultCodePattern = regexp.MustCompile(`Result_code:\s*(\d+)\s*,?\s*(.*)`)

// ValidateContent returns an *EncodingError when text holds characters the
// GSM 03.38 default alphabet cannot carry.
func ValidateContent(text string) error {
	if invalid := data.ValidateGSM7String(text); len(invalid) > 0 {
		return &EncodingError{Invalid: invalid}
	}
	return nil
}

// parseResult extracts the vendor result code and message from a response body.
func parseResult(body string) (code, message string, ok bool) {
	m := resultCodePattern.FindStringSubmatch(body)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

func (t *Vas2NetsTransport) sendForm(msg bus.Message) url.Values {
	messageID := msg.InReplyTo
	if messageID == "" {
		messageID = msg.MessageID
	}
	tariff := t.cfg.Tariff
	if tariff == "" {
		tariff = "0"
	}

	form := url.Values{}
	form.Set("username", t.cfg.Username)
	form.Set("password", t.cfg.Password)
	form.Set("owner", t.cfg.Owner)
	form.Set("service", t.cfg.Service)
	form.Set("subservice", t.cfg.Subservice)
	form.Set("call-number", msisdn.ToVendor(msg.ToAddr))
	form.Set("origin", msg.FromAddr)
	form.Set("text", msg.Content)
	form.Set("messageid", messageID)
	form.Set("provider", msg.TransportNetworkID)
	form.Set("tariff", tariff)
	return form
}

// Send submits msg to Vas2Nets in a single attempt and publishes an ack on
// success. It returns the vendor-assigned message id. On any failure nothing
// is published.
func (t *Vas2NetsTransport) Send(ctx context.Context, msg bus.Message) (string, error) {
	ctx, span := t.tracer.Start(ctx, "vas2nets.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("transport", t.name),
			attribute.String("message_id", msg.MessageID),
		),
	)
	defer span.End()

	smsID, err := t.send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.OutboundSends.WithLabelValues(t.name, metrics.ResultError).Inc()
		return "", err
	}
	span.SetAttributes(attribute.String("transport_message_id", smsID))
	metrics.OutboundSends.WithLabelValues(t.name, metrics.ResultOK).Inc()
	return smsID, nil
}

func (t *Vas2NetsTransport) send(ctx context.Context, msg bus.Message) (string, error) {
	if err := ValidateContent(msg.Content); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, strings.NewReader(t.sendForm(msg).Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build vendor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	body := string(raw)

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(body)}
	}

	code, text, ok := parseResult(body)
	if !ok {
		return "", &TransportError{StatusCode: resp.StatusCode, Message: "unparseable response: " + strings.TrimSpace(body)}
	}
	if code != resultCodeOK {
		return "", &TransportError{StatusCode: resp.StatusCode, ResultCode: code, Message: text}
	}

	smsID := resp.Header.Get(headerSMSID)
	ack := bus.NewEvent(t.name, bus.EventAck, msg.MessageID)
	ack.TransportType = bus.TransportSMS
	ack.TransportMessageID = smsID
	ack.SentMessageID = smsID
	if err := t.publish(ctx, bus.SMSAckKey(t.name), ack); err != nil {
		return "", fmt.Errorf("failed to publish ack for %s: %w", msg.MessageID, err)
	}

	t.logger.Debug("sms sent", "message_id", msg.MessageID, "transport_message_id", smsID)
	return smsID, nil
}
