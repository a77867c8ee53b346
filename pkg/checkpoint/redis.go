package checkpoint

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	lverrors "github.com/logflow/logvar/pkg/errors"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "logvar:reports:")
	Prefix string

	// TTL is the time-to-live for entries (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "logvar:reports:",
		TTL:      7 * 24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// Redis stores report entries in Redis. Each log name also has a set of
// its stored keys so stale entries can be found per log.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, lverrors.Wrap(err, lverrors.CodeCheckpoint, "connect to redis").
			WithContext("address", cfg.Address)
	}

	return &Redis{cfg: cfg, client: client}, nil
}

func (r *Redis) key(k Key) string {
	return r.cfg.Prefix + k.String()
}

func (r *Redis) indexKey(name string) string {
	return r.cfg.Prefix + "index:" + name
}

// Load retrieves an entry.
func (r *Redis) Load(ctx context.Context, key Key) (*Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, lverrors.Wrap(err, lverrors.CodeCheckpoint, "load report from redis")
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, lverrors.Wrap(err, lverrors.CodeCheckpoint, "decode stored report").
			WithContext("key", key.String())
	}
	return &e, true, nil
}

// Save persists an entry and indexes it under its log name.
func (r *Redis) Save(ctx context.Context, key Key, entry *Entry) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return lverrors.Wrap(err, lverrors.CodeCheckpoint, "encode report")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(key), data, r.cfg.TTL)
	pipe.SAdd(ctx, r.indexKey(key.Name), key.String())
	if r.cfg.TTL > 0 {
		pipe.Expire(ctx, r.indexKey(key.Name), r.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return lverrors.Wrap(err, lverrors.CodeCheckpoint, "save report to redis")
	}
	return nil
}

// Delete removes an entry and its index membership.
func (r *Redis) Delete(ctx context.Context, key Key) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(key))
	pipe.SRem(ctx, r.indexKey(key.Name), key.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return lverrors.Wrap(err, lverrors.CodeCheckpoint, "delete report from redis")
	}
	return nil
}

// Keys returns the stored keys of a log.
func (r *Redis) Keys(ctx context.Context, name string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	keys, err := r.client.SMembers(ctx, r.indexKey(name)).Result()
	if err != nil {
		return nil, lverrors.Wrap(err, lverrors.CodeCheckpoint, "list stored reports")
	}
	return keys, nil
}

func (r *Redis) Name() string { return "redis" }

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
