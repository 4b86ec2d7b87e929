package transports

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
)

type vas2netsHarness struct {
	t         *testing.T
	ctx       context.Context
	cfg       config.Vas2NetsConfig
	bus       *bus.MessageBus
	transport *Vas2NetsTransport
	router    *gin.Engine
}

func newVas2NetsHarness(t *testing.T, vendorURL string) *vas2netsHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig().Transports.Vas2Nets
	cfg.Enabled = true
	cfg.URL = vendorURL
	cfg.Username = "user"
	cfg.Password = "pass"
	cfg.Owner = "owner"
	cfg.Service = "service"
	cfg.Subservice = "subservice"

	ctx, cancel := context.WithCancel(context.Background())
	b := bus.NewMessageBus(10)
	tr := NewVas2NetsTransport(cfg, b, nil, nil)
	t.Cleanup(func() {
		tr.Stop()
		cancel()
		b.Close()
	})

	r := gin.New()
	tr.Routes(r)
	return &vas2netsHarness{t: t, ctx: ctx, cfg: cfg, bus: b, transport: tr, router: r}
}

func (h *vas2netsHarness) subscribe(key string) <-chan bus.Delivery {
	h.t.Helper()
	ch, err := h.bus.Subscribe(h.ctx, key)
	require.NoError(h.t, err)
	return ch
}

func (h *vas2netsHarness) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func receiveForm() url.Values {
	return url.Values{
		"messageid":   {"1"},
		"time":        {"2010.01.02 15:04:05"},
		"sender":      {"0041791234567"},
		"destination": {"9292"},
		"provider":    {"provider"},
		"keyword":     {""},
		"header":      {""},
		"text":        {"hello world"},
	}
}

func receiptForm() url.Values {
	return url.Values{
		"smsid":     {"1"},
		"messageid": {"internal id"},
		"sender":    {"+41791234567"},
		"time":      {"2010.01.02 15:04:05"},
		"status":    {"2"},
		"provider":  {"provider"},
		"text":      {"Message delivered to MSISDN."},
	}
}

func mustReceive(t *testing.T, ch <-chan bus.Delivery) bus.Delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(waitTimeout):
		t.Fatal("no message dispatched")
		return bus.Delivery{}
	}
}

func assertNothing(t *testing.T, ch <-chan bus.Delivery) {
	t.Helper()
	select {
	case d := <-ch:
		t.Errorf("unexpected message on %s: %+v", d.RoutingKey, d.Message)
	default:
	}
}

func TestVas2NetsReceiveSMS(t *testing.T) {
	h := newVas2NetsHarness(t, "")
	inbound := h.subscribe("sms.inbound.vas2nets.9292")

	w := h.post(h.cfg.WebReceivePath, receiveForm())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get("X-Nth-Smsid"))
	assert.Equal(t, "", w.Body.String())

	msg := mustReceive(t, inbound).Message
	assert.Equal(t, bus.TypeUserMessage, msg.MessageType)
	assert.Equal(t, "vas2nets", msg.TransportName)
	assert.Equal(t, bus.TransportSMS, msg.TransportType)
	assert.Equal(t, "1", msg.TransportMessageID)
	assert.Equal(t, "2010-01-02T15:04:05", msg.TransportTimestamp)
	assert.Equal(t, "provider", msg.TransportNetworkID)
	assert.Equal(t, "", msg.TransportKeyword)
	assert.Equal(t, "9292", msg.ToAddr)
	assert.Equal(t, "+41791234567", msg.FromAddr)
	assert.Equal(t, "hello world", msg.Content)
}

func TestVas2NetsReceiveGET(t *testing.T) {
	h := newVas2NetsHarness(t, "")
	inbound := h.subscribe("sms.inbound.vas2nets.9292")

	req := httptest.NewRequest(http.MethodGet, h.cfg.WebReceivePath+"?"+receiveForm().Encode(), nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello world", mustReceive(t, inbound).Message.Content)
}

func TestVas2NetsReceiveMissingParams(t *testing.T) {
	h := newVas2NetsHarness(t, "")
	inbound := h.subscribe("sms.inbound.vas2nets.9292")

	form := receiveForm()
	form.Del("text")
	form.Del("provider")
	w := h.post(h.cfg.WebReceivePath, form)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"missing_parameter": ["provider", "text"]}`, w.Body.String())
	assertNothing(t, inbound)
}

func TestVas2NetsReceiveBadTime(t *testing.T) {
	h := newVas2NetsHarness(t, "")

	form := receiveForm()
	form.Set("time", "yesterday")
	w := h.post(h.cfg.WebReceivePath, form)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"invalid_parameter": ["time"]}`, w.Body.String())
}

func TestVas2NetsReceiveWithoutSubscriber(t *testing.T) {
	h := newVas2NetsHarness(t, "")

	w := h.post(h.cfg.WebReceivePath, receiveForm())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("X-Nth-Smsid"), "vendor must not see the SMS as accepted")
}

func TestVas2NetsReceiptWithoutSubscriber(t *testing.T) {
	h := newVas2NetsHarness(t, "")

	w := h.post(h.cfg.WebReceiptPath, receiptForm())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestVas2NetsSendAckWithoutSubscriber(t *testing.T) {
	srv := vendor(t, "Result_code: 00, Message OK", nil)
	h := newVas2NetsHarness(t, srv.URL)

	_, err := h.transport.Send(h.ctx, outboundMessage())
	assert.ErrorIs(t, err, bus.ErrNoSubscribers)
}

func TestVas2NetsDeliveryReceipt(t *testing.T) {
	h := newVas2NetsHarness(t, "")
	receipts := h.subscribe("sms.receipt.vas2nets")

	w := h.post(h.cfg.WebReceiptPath, receiptForm())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", w.Body.String())

	event := mustReceive(t, receipts).Message
	assert.Equal(t, bus.TypeEvent, event.MessageType)
	assert.Equal(t, bus.EventDeliveryReport, event.EventType)
	assert.Equal(t, "internal id", event.UserMessageID)
	assert.Equal(t, "1", event.TransportMessageID)
	assert.Equal(t, "2", event.TransportStatus)
	assert.Equal(t, "delivered", event.DeliveryStatus)
	assert.Equal(t, "Message delivered to MSISDN.", event.TransportStatusMessage)
	assert.Equal(t, "provider", event.TransportNetworkID)
	assert.Equal(t, "+41791234567", event.ToAddr)
	assert.Equal(t, "2010-01-02T15:04:05", event.TransportTimestamp)
}

func TestVas2NetsDeliveryStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"1", "pending"},
		{"2", "delivered"},
		{"3", "failed"},
		{"-1", "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := newVas2NetsHarness(t, "")
			receipts := h.subscribe("sms.receipt.vas2nets")

			form := receiptForm()
			form.Set("status", tt.status)
			require.Equal(t, http.StatusOK, h.post(h.cfg.WebReceiptPath, form).Code)
			assert.Equal(t, tt.want, mustReceive(t, receipts).Message.DeliveryStatus)
		})
	}
}

func TestValidateContent(t *testing.T) {
	valid := []string{
		"The quick brown fox jumps over the lazy dog",
		"0123456789",
		"äöü ÄÖÜ àùò ìèé §Ññ £$@",
		"/?!#%&()*+,-:;<=>.",
		"testing\nnewlines\rwith\r\nboth",
		`testing "double" and 'single' quotes`,
	}
	for _, text := range valid {
		assert.NoError(t, ValidateContent(text), text)
	}

	err := ValidateContent("ïøéå¬∆˚")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEncoding))

	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.NotEmpty(t, encErr.Invalid)
}

func TestParseResult(t *testing.T) {
	code, msg, ok := parseResult("Result_code: 00, Message OK")
	assert.True(t, ok)
	assert.Equal(t, "00", code)
	assert.Equal(t, "Message OK", msg)

	code, msg, ok = parseResult("Result_code: 04, Internal system error occurred while processing message")
	assert.True(t, ok)
	assert.Equal(t, "04", code)
	assert.Equal(t, "Internal system error occurred while processing message", msg)

	_, _, ok = parseResult("<html>maintenance</html>")
	assert.False(t, ok)
}

func outboundMessage() bus.Message {
	msg := bus.NewUserMessage("vas2nets", bus.TransportSMS)
	msg.MessageID = "1"
	msg.ToAddr = "+27761234567"
	msg.FromAddr = "9292"
	msg.Content = "hello world"
	msg.TransportNetworkID = "network-id"
	return msg
}

// vendor returns a fake Vas2Nets endpoint answering every request with body.
func vendor(t *testing.T, body string, forms chan<- url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		if forms != nil {
			forms <- form
		}
		w.Header().Set("X-Nth-Smsid", "vendor-1")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVas2NetsSendSMSSuccess(t *testing.T) {
	forms := make(chan url.Values, 1)
	srv := vendor(t, "Result_code: 00, Message OK", forms)
	h := newVas2NetsHarness(t, srv.URL)
	acks := h.subscribe("sms.ack.vas2nets")

	smsID, err := h.transport.Send(h.ctx, outboundMessage())
	require.NoError(t, err)
	assert.Equal(t, "vendor-1", smsID)

	form := <-forms
	for _, key := range []string{
		"username", "password", "call-number", "origin", "text", "messageid",
		"provider", "tariff", "owner", "service", "subservice",
	} {
		assert.True(t, form.Has(key), "missing %s", key)
	}
	assert.Equal(t, "0027761234567", form.Get("call-number"))
	assert.Equal(t, "9292", form.Get("origin"))
	assert.Equal(t, "1", form.Get("messageid"))
	assert.Equal(t, "network-id", form.Get("provider"))
	assert.Equal(t, "0", form.Get("tariff"))

	ack := mustReceive(t, acks).Message
	assert.Equal(t, bus.EventAck, ack.EventType)
	assert.Equal(t, "1", ack.UserMessageID)
	assert.Equal(t, "vendor-1", ack.TransportMessageID)
	assert.Equal(t, "vendor-1", ack.SentMessageID)
}

func TestVas2NetsSendReplyUsesInReplyTo(t *testing.T) {
	forms := make(chan url.Values, 1)
	srv := vendor(t, "Result_code: 00, Message OK", forms)
	h := newVas2NetsHarness(t, srv.URL)
	h.subscribe("sms.ack.vas2nets")

	msg := outboundMessage()
	msg.InReplyTo = "vendor-incoming"
	_, err := h.transport.Send(h.ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "vendor-incoming", (<-forms).Get("messageid"))
}

func TestVas2NetsSendSMSFail(t *testing.T) {
	srv := vendor(t, "Result_code: 04, Internal system error occurred while processing message", nil)
	h := newVas2NetsHarness(t, srv.URL)
	acks := h.subscribe("sms.ack.vas2nets")

	_, err := h.transport.Send(h.ctx, outboundMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "04", terr.ResultCode)
	assert.Equal(t, "Internal system error occurred while processing message", terr.Message)
	assertNothing(t, acks)
}

func TestVas2NetsSendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	h := newVas2NetsHarness(t, srv.URL)

	_, err := h.transport.Send(h.ctx, outboundMessage())
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
}

func TestVas2NetsSendInvalidCharacters(t *testing.T) {
	hits := make(chan url.Values, 1)
	srv := vendor(t, "Result_code: 00, Message OK", hits)
	h := newVas2NetsHarness(t, srv.URL)

	msg := outboundMessage()
	msg.Content = "ïøéå¬∆˚"
	_, err := h.transport.Send(h.ctx, msg)
	assert.True(t, errors.Is(err, ErrEncoding))
	assert.Empty(t, hits, "vendor must not be called")
}

func TestVas2NetsConsumesOutbound(t *testing.T) {
	srv := vendor(t, "Result_code: 00, Message OK", nil)
	h := newVas2NetsHarness(t, srv.URL)
	acks := h.subscribe("sms.ack.vas2nets")

	require.NoError(t, h.transport.Start(h.ctx))
	assert.True(t, h.transport.IsRunning())
	require.NoError(t, h.bus.Publish(h.ctx, "sms.outbound.vas2nets", outboundMessage()))

	assert.Equal(t, "1", mustReceive(t, acks).Message.UserMessageID)

	require.NoError(t, h.transport.Stop())
	assert.False(t, h.transport.IsRunning())
}
