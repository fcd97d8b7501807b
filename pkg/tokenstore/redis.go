package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout bounds each Redis operation.
const DefaultRedisTimeout = 2 * time.Second

// Redis is a Store backed by Redis. Expiry uses Redis's native TTL, so several gateway processes
// can share one session.
type Redis struct {
	Timeout time.Duration
	rdb     goredis.UniversalClient
	prefix  string
}

// NewRedis returns a Store that keeps values in rdb under keys namespaced by profile.
func NewRedis(rdb goredis.UniversalClient, profile string) *Redis {
	if profile == "" {
		profile = "default"
	}
	return &Redis{
		Timeout: DefaultRedisTimeout,
		rdb:     rdb,
		prefix:  "carpool:" + profile + ":",
	}
}

// DialRedis connects to the Redis server at addr and verifies the connection.
func DialRedis(ctx context.Context, addr, profile string) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: could not connect to %s: %w", addr, err)
	}
	return NewRedis(rdb, profile), nil
}

func (r *Redis) context() (context.Context, context.CancelFunc) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRedisTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (r *Redis) Get(key string) (string, bool, error) {
	ctx, cancel := r.context()
	defer cancel()
	value, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: could not load %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Redis) Set(key, value string, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl < 0 {
		ttl = 0
	}
	ctx, cancel := r.context()
	defer cancel()
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: could not save %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(key string) error {
	ctx, cancel := r.context()
	defer cancel()
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis: could not remove %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
