package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic WATCH retries in Update.
const maxUpdateRetries = 10

// RedisStore keeps sessions in Redis as JSON under <prefix>:session:<id>.
// Replicas sharing a prefix share sessions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore creates a Redis-based session store on an existing client.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}
}

// WithPrefix returns a store on the same client under another namespace.
func (r *RedisStore) WithPrefix(prefix string) *RedisStore {
	return &RedisStore{client: r.client, ttl: r.ttl, prefix: prefix}
}

func (r *RedisStore) key(id string) string {
	return Key(r.prefix, id)
}

func decode(val string) (*Session, error) {
	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Create uses SET NX so exactly one replica wins a race on a new id.
func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ID), val, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis create session %s: %w", s.ID, err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

// Load returns nil if the session is not found
func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load session %s: %w", id, err)
	}
	return decode(val)
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis delete session %s: %w", id, err)
	}
	return n > 0, nil
}

// Update runs fn under WATCH/MULTI/EXEC. A concurrent write to the key aborts
// the transaction and fn is re-run on the fresh value.
func (r *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	key := r.key(id)
	var saved *Session

	txf := func(tx *redis.Tx) error {
		saved = nil

		var current *Session
		val, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decode(val); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if next == nil {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}

		next.ID = id
		next.UpdatedAt = time.Now()
		newVal, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, r.ttl)
			return nil
		})
		if err == nil {
			saved = next
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return saved, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("update session %s: %w", id, ErrConflict)
}

// Close is a no-op; the client's owner closes it.
func (r *RedisStore) Close() error {
	return nil
}
