package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
)

const (
	kafkaMaxRetries     = 3
	kafkaInitialBackoff = 100 * time.Millisecond
	kafkaMaxBackoff     = 5 * time.Second
)

// KafkaBroker implements Broker on Apache Kafka. The routing key is the topic.
// Every subscription runs its own consumer group session on a shared client.
// Replicas share the group, so each message reaches one of them, except on
// fan-out topics which every replica consumes under its own group.
type KafkaBroker struct {
	client     sarama.Client
	producer   sarama.SyncProducer
	groupID    string
	replicaID  string
	fanout     map[string]bool
	bufferSize int
	logger     *slog.Logger

	mu     sync.RWMutex
	groups []sarama.ConsumerGroup
	closed bool
}

// KafkaOption configures a KafkaBroker.
type KafkaOption func(*KafkaBroker)

// WithFanOut makes every replica consume the given topics. replicaID must be
// unique per process and stable across restarts, a hostname for instance.
func WithFanOut(replicaID string, routingKeys ...string) KafkaOption {
	return func(b *KafkaBroker) {
		b.replicaID = replicaID
		for _, key := range routingKeys {
			b.fanout[key] = true
		}
	}
}

// NewKafkaBroker connects a client and a sync producer to brokers.
func NewKafkaBroker(brokers []string, groupID string, bufferSize int, logger *slog.Logger, opts ...KafkaOption) (*KafkaBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := newKafkaBroker(groupID, bufferSize, logger, opts...)

	config := sarama.NewConfig()

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = kafkaMaxRetries
	config.Producer.Return.Successes = true

	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	config.Version = sarama.V3_6_0_0

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	b.client = client
	b.producer = producer
	return b, nil
}

func newKafkaBroker(groupID string, bufferSize int, logger *slog.Logger, opts ...KafkaOption) *KafkaBroker {
	b := &KafkaBroker{
		groupID:    groupID,
		fanout:     make(map[string]bool),
		bufferSize: bufferSize,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// groupFor returns the consumer group a subscription on routingKey joins.
func (b *KafkaBroker) groupFor(routingKey string) string {
	if b.fanout[routingKey] && b.replicaID != "" {
		return b.groupID + "-" + b.replicaID
	}
	return b.groupID
}

// partitionKey keeps every message of one dialogue on one partition.
func partitionKey(msg Message) string {
	if msg.InReplyTo != "" {
		return msg.InReplyTo
	}
	if msg.UserMessageID != "" {
		return msg.UserMessageID
	}
	return msg.MessageID
}

// Publish sends msg to the routingKey topic, retrying with exponential backoff.
func (b *KafkaBroker) Publish(ctx context.Context, routingKey string, msg Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: routingKey,
		Key:   sarama.StringEncoder(partitionKey(msg)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("message_type"), Value: []byte(msg.MessageType)},
			{Key: []byte("transport_name"), Value: []byte(msg.TransportName)},
		},
		Timestamp: time.Now(),
	}

	operation := func() error {
		_, _, err := b.producer.SendMessage(kafkaMsg)
		return err
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(kafkaInitialBackoff),
				backoff.WithMaxInterval(kafkaMaxBackoff),
			),
			kafkaMaxRetries,
		),
		ctx,
	)

	err = backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		b.logger.Warn("retrying kafka publish", "routing_key", routingKey, "message_id", msg.MessageID, "err", err, "next", d)
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", routingKey, err)
	}
	return nil
}

// Subscribe consumes the routingKey topic as part of the broker's group, or
// of this replica's own group on fan-out topics.
func (b *KafkaBroker) Subscribe(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	group, err := sarama.NewConsumerGroupFromClient(b.groupFor(routingKey), b.client)
	if err != nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}
	b.groups = append(b.groups, group)
	b.mu.Unlock()

	out := make(chan Delivery, b.bufferSize)
	handler := &consumerGroupHandler{
		out:    out,
		ready:  make(chan struct{}),
		logger: b.logger,
	}

	go func() {
		defer close(out)
		for {
			// Consume returns on every rebalance and must be called again.
			if err := group.Consume(ctx, []string{routingKey}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				b.logger.Error("kafka consumer group error", "routing_key", routingKey, "err", err)
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range group.Errors() {
			b.logger.Error("kafka consumer error", "err", err)
		}
	}()

	select {
	case <-handler.ready:
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("timeout waiting for kafka consumer on %s", routingKey)
	}
}

// Close shuts the producer and consumer group down.
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	for _, group := range b.groups {
		if err := group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer group: %w", err))
		}
	}
	if err := b.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, fmt.Errorf("failed to close client: %w", err))
	}
	return errors.Join(errs...)
}

// Type identifies the broker implementation.
func (b *KafkaBroker) Type() string {
	return "kafka"
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	out    chan<- Delivery
	ready  chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() {
		close(h.ready)
	})
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case kafkaMsg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var msg Message
			if err := json.Unmarshal(kafkaMsg.Value, &msg); err != nil {
				h.logger.Warn("dropping undecodable bus message", "routing_key", kafkaMsg.Topic, "err", err)
				session.MarkMessage(kafkaMsg, "")
				continue
			}

			select {
			case h.out <- Delivery{RoutingKey: kafkaMsg.Topic, Message: msg}:
			case <-session.Context().Done():
				return nil
			}
			session.MarkMessage(kafkaMsg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
