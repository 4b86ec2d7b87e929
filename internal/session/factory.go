package session

// NewStore creates a Store based on the given type.
// For redis, requires WithRedisClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return NewMemoryStore(config.keyPrefix, config.ttl), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(config.redisClient, config.keyPrefix, config.ttl), nil

	default:
		return nil, ErrInvalidStoreType
	}
}

// Namespaced is implemented by stores that can re-scope themselves to another
// key prefix while sharing the same backend.
type Namespaced interface {
	Store
	Prefixed(prefix string) Store
}

func (m *MemoryStore) Prefixed(prefix string) Store { return m.WithPrefix(prefix) }

func (r *RedisStore) Prefixed(prefix string) Store { return r.WithPrefix(prefix) }
