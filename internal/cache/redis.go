package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/biomed-sul/leadscout/internal/contacts"
)

// redisCmdable is the part of *redis.Client the cache needs.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Redis is a PageCache shared across processes through Redis.
type Redis struct {
	client redisCmdable
}

// RedisOptions locates the Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects lazily to the Redis server.
func NewRedis(o RedisOptions) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})}
}

func pageKey(url string) string {
	return fmt.Sprintf("leadscout:page:%s", url)
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return eris.Wrap(r.client.Ping(ctx).Err(), "cache: redis ping")
}

func (r *Redis) Get(ctx context.Context, url string) (contacts.Result, bool, error) {
	raw, err := r.client.Get(ctx, pageKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return contacts.Result{}, false, nil
	}
	if err != nil {
		return contacts.Result{}, false, eris.Wrapf(err, "cache: redis get %s", url)
	}
	var res contacts.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return contacts.Result{}, false, eris.Wrapf(err, "cache: decode %s", url)
	}
	return res, true, nil
}

func (r *Redis) Set(ctx context.Context, url string, res contacts.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", url)
	}
	return eris.Wrapf(r.client.Set(ctx, pageKey(url), raw, ttl).Err(), "cache: redis set %s", url)
}
