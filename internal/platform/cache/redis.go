// Package cache wraps the Redis client used for short-lived read caches.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	ErrMiss  = errors.New("cache miss")
	ErrStale = errors.New("cache version changed")
)

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Hash stores values as fields of a per-entity hash. The reserved field
// VersionField holds a token that changes on every Bump; SetIfVersion only
// writes while the token still matches, so a reader that computed its value
// before a Bump can never put it back afterwards.
type Hash struct {
	c *redis.Client
}

// VersionField is the hash field holding the entity's current version token.
const VersionField = "_v"

var setIfVersion = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur == false then cur = '' end
if cur ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func NewHash(c *redis.Client) *Hash { return &Hash{c: c} }

func (h *Hash) Get(ctx context.Context, key, field string) ([]byte, error) {
	val, err := h.c.HGet(ctx, key, field).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

// Version returns the key's current version token, "" when the key is absent
// or has never been bumped.
func (h *Hash) Version(ctx context.Context, key string) (string, error) {
	v, err := h.c.HGet(ctx, key, VersionField).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// SetIfVersion writes one field and refreshes the hash TTL, but only while the
// version token equals version. It returns ErrStale otherwise.
func (h *Hash) SetIfVersion(ctx context.Context, key, version, field string, val []byte, ttl time.Duration) error {
	n, err := setIfVersion.Run(ctx, h.c, []string{key},
		VersionField, version, field, val, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// Bump drops every cached field of key and installs a fresh version token in
// one MULTI/EXEC.
func (h *Hash) Bump(ctx context.Context, key string, ttl time.Duration) error {
	_, err := h.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, VersionField, uuid.NewString())
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (h *Hash) Ping(ctx context.Context) error {
	return h.c.Ping(ctx).Err()
}
