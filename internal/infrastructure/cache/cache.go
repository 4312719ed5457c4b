package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// Store is a namespaced TTL cache for JSON-encodable values.
type Store interface {
	GetJSON(ctx context.Context, namespace, key string, dest any) error
	SetJSON(ctx context.Context, namespace, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

type Cache struct {
	client redis.UniversalClient
}

func NewCache(addr, password string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return &Cache{client: rdb}
}

func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) GetJSON(ctx context.Context, namespace, key string, dest any) error {
	raw, err := c.client.Get(ctx, namespace+":"+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get %s:%s: %w", namespace, key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache decode %s:%s: %w", namespace, key, err)
	}
	return nil
}

func (c *Cache) SetJSON(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s:%s: %w", namespace, key, err)
	}
	return c.client.Set(ctx, namespace+":"+key, raw, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, namespace, key string) error {
	return c.client.Del(ctx, namespace+":"+key).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Noop never stores anything; every read is a miss.
type Noop struct{}

func (Noop) GetJSON(context.Context, string, string, any) error { return ErrCacheMiss }

func (Noop) SetJSON(context.Context, string, string, any, time.Duration) error { return nil }

func (Noop) Delete(context.Context, string, string) error { return nil }
