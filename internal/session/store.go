package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a session is required but absent.
	ErrNotFound = errors.New("session: not found")
	// ErrConflict is returned by Create when the id is already taken, and by
	// Update when the optimistic retries are exhausted.
	ErrConflict = errors.New("session: conflict")
	// ErrInvalidConfig is returned by NewStore when a driver option is missing.
	ErrInvalidConfig = errors.New("session: invalid store configuration")
	// ErrInvalidStoreType is returned by NewStore for an unknown driver.
	ErrInvalidStoreType = errors.New("session: invalid store type")
)

const (
	// DefaultTTL is the session lifetime when none is configured.
	DefaultTTL = 300 * time.Second
	// DefaultKeyPrefix namespaces keys when no prefix is configured.
	DefaultKeyPrefix = "ugate"
)

// UpdateFunc receives the current session, or nil if none exists, and returns
// the session to save. Returning nil deletes the session. Returning an error
// aborts without writing.
type UpdateFunc func(current *Session) (*Session, error)

// Store is shared by every replica. Implementations must make Update atomic
// with respect to concurrent Update, Save and Delete on the same id.
type Store interface {
	// Create saves a new session, failing with ErrConflict when the id exists.
	Create(ctx context.Context, s *Session) error
	// Load returns the session, or nil when it does not exist.
	Load(ctx context.Context, id string) (*Session, error)
	// Save writes the session and refreshes its TTL.
	Save(ctx context.Context, s *Session) error
	// Delete removes the session and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	// Update runs fn as an atomic read-modify-write and returns what was saved.
	Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error)
	Close() error
}

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	keyPrefix   string
}

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithKeyPrefix namespaces session keys. Stores sharing a prefix share sessions.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// Key builds the storage key for a session id.
func Key(prefix, id string) string {
	return prefix + ":session:" + id
}
