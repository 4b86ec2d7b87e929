package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/cron"
	"github.com/hkuds/ugate/internal/metrics"
	"github.com/hkuds/ugate/internal/session"
	"github.com/hkuds/ugate/internal/transports"
)

const pingTimeout = 5 * time.Second

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", client.Options().Addr, err)
	}
	return nil
}

// openBroker connects the configured message bus. The returned func closes it.
func openBroker(ctx context.Context, cfg *config.Config, logger *slog.Logger) (bus.Broker, func(), error) {
	switch cfg.Bus.Type {
	case "redis":
		client := newRedisClient(cfg.Bus.Redis)
		if err := ping(ctx, client); err != nil {
			client.Close()
			return nil, nil, err
		}
		b := bus.NewRedisBroker(client, cfg.Bus.BufferSize, logger)
		return b, func() {
			b.Close()
			client.Close()
		}, nil
	case "kafka":
		b, err := bus.NewKafkaBroker(cfg.Bus.Kafka.Brokers, cfg.Bus.Kafka.GroupID, cfg.Bus.BufferSize, logger, kafkaFanOut(cfg))
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	default:
		b := bus.NewMessageBus(cfg.Bus.BufferSize)
		return b, func() { b.Close() }, nil
	}
}

// kafkaFanOut gives each replica its own group on the USSD reply topic. The
// request waiting for a reply lives in one replica's memory, so every replica
// must see every reply.
func kafkaFanOut(cfg *config.Config) bus.KafkaOption {
	replicaID, err := os.Hostname()
	if err != nil || replicaID == "" {
		replicaID = fmt.Sprintf("pid%d", os.Getpid())
	}
	var keys []string
	if cfg.Transports.Airtel.Enabled {
		keys = append(keys, bus.OutboundKey(cfg.Transports.Airtel.TransportName))
	}
	return bus.WithFanOut(replicaID, keys...)
}

// openStore builds the session store. The returned func releases the backend.
func openStore(ctx context.Context, cfg *config.Config) (session.Store, func(), error) {
	opts := []session.StoreOption{
		session.WithTTL(cfg.Transports.Airtel.SessionLifetimeDuration()),
		session.WithKeyPrefix(session.DefaultKeyPrefix),
	}

	var client *redis.Client
	if cfg.Sessions.Store == string(session.StoreTypeRedis) {
		client = newRedisClient(cfg.Sessions.Redis)
		if err := ping(ctx, client); err != nil {
			client.Close()
			return nil, nil, err
		}
		opts = append(opts, session.WithRedisClient(client))
	}

	store, err := session.NewStore(session.StoreType(cfg.Sessions.Store), opts...)
	if err != nil {
		if client != nil {
			client.Close()
		}
		return nil, nil, fmt.Errorf("session store: %w", err)
	}

	release := func() {
		store.Close()
		if client != nil {
			client.Close()
		}
	}
	return store, release, nil
}

// housekeeping reclaims expired in-memory sessions and stale late-reply
// records. Redis expires sessions on its own.
func housekeeping(schedule string, store session.Store, manager *transports.Manager) cron.Job {
	return cron.Job{
		Name:     "housekeeping",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			if s, ok := store.(interface{ Sweep() int }); ok {
				metrics.SessionsSwept.Add(float64(s.Sweep()))
			}
			manager.Sweep()
			return nil
		},
	}
}
