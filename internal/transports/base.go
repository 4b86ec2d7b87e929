package transports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/metrics"
)

// Transport is the interface all vendor transports must implement.
type Transport interface {
	// Name returns the unique identifier for this transport.
	Name() string

	// Type returns the canonical transport type, "ussd" or "sms".
	Type() string

	// Routes mounts the vendor-facing HTTP endpoints.
	Routes(r gin.IRouter)

	// Start begins consuming outbound messages from the bus.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the transport.
	Stop() error

	// IsRunning returns true if the transport is currently active.
	IsRunning() bool
}

// BaseTransport provides common functionality for all transport implementations.
type BaseTransport struct {
	name          string
	transportType string
	broker        bus.Broker
	logger        *slog.Logger

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
}

// NewBaseTransport creates a new BaseTransport with the given parameters.
func NewBaseTransport(name, transportType string, broker bus.Broker, logger *slog.Logger) BaseTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return BaseTransport{
		name:          name,
		transportType: transportType,
		broker:        broker,
		logger:        logger.With("transport", name),
	}
}

// Name returns the transport's unique identifier.
func (t *BaseTransport) Name() string {
	return t.name
}

// Type returns the canonical transport type.
func (t *BaseTransport) Type() string {
	return t.transportType
}

// IsRunning returns true if the transport is currently active.
func (t *BaseTransport) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// consume subscribes to routingKey and runs fn for every message until Stop.
func (t *BaseTransport) consume(ctx context.Context, routingKey string, fn func(context.Context, bus.Message)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("transport %s already running", t.name)
	}

	ctx, cancel := context.WithCancel(ctx)
	deliveries, err := t.broker.Subscribe(ctx, routingKey)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", routingKey, err)
	}

	t.cancel = cancel
	t.running = true
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		bus.Dispatch(ctx, deliveries, t.logger, fn)
	}()

	t.logger.Info("transport consuming", "routing_key", routingKey)
	return nil
}

// Stop cancels the consumer and waits for the in-flight handler to return.
func (t *BaseTransport) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	t.wg.Wait()
	return nil
}

// publish hands msg to the bus. Failures are returned, never swallowed.
func (t *BaseTransport) publish(ctx context.Context, routingKey string, msg bus.Message) error {
	if err := t.broker.Publish(ctx, routingKey, msg); err != nil {
		t.logger.Error("publish failed",
			"routing_key", routingKey,
			"message_id", msg.MessageID,
			"err", err)
		return err
	}
	metrics.MessagesPublished.WithLabelValues(t.name, routingKey).Inc()
	return nil
}

// requestValues returns query and form parameters combined. Malformed pairs
// are dropped rather than failing the request; aggregators send garbled
// parameter lists in production.
func (t *BaseTransport) requestValues(c *gin.Context) url.Values {
	if err := c.Request.ParseForm(); err != nil {
		t.logger.Debug("partial parameter parse", "err", err)
	}
	if c.Request.Form == nil {
		return url.Values{}
	}
	return c.Request.Form
}

// plain writes a text/plain response.
func plain(c *gin.Context, status int, body string) {
	c.Data(status, "text/plain", []byte(body))
}

func internalError(c *gin.Context) {
	plain(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}
