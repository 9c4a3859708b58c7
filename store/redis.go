package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by Redis. Keys are namespaced as
// "{prefix}:{namespace}:{kind}:{name}":
//
//	day:{name}:{YYYY-MM-DD}  INCR, expires after DayTTL
//	ctr:{name}               INCR / SET
//	set:{name}               SADD / SMEMBERS
//	kv:{key}                 GET / SET
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	namespace string
	dayTTL    time.Duration
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Prefix    string        // key prefix, default "companion"
	Namespace string        // default "default"
	DayTTL    time.Duration // lifetime of daily counters, default 48h
}

// NewRedis creates a Store over an existing client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "companion"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.DayTTL <= 0 {
		cfg.DayTTL = 48 * time.Hour
	}
	return &Redis{
		client:    client,
		prefix:    cfg.Prefix,
		namespace: cfg.Namespace,
		dayTTL:    cfg.DayTTL,
	}
}

// OpenRedis connects to url and pings it.
func OpenRedis(ctx context.Context, url string, cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, cfg), nil
}

func (r *Redis) key(kind, name string) string {
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, r.namespace, kind, name)
}

func (r *Redis) readInt(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

func (r *Redis) DayCount(ctx context.Context, name, day string) (int64, error) {
	return r.readInt(ctx, r.key("day", name+":"+day))
}

func (r *Redis) IncrDay(ctx context.Context, name, day string) (int64, error) {
	k := r.key("day", name+":"+day)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, r.dayTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", k, err)
	}
	return incr.Val(), nil
}

func (r *Redis) Counter(ctx context.Context, name string) (int64, error) {
	return r.readInt(ctx, r.key("ctr", name))
}

func (r *Redis) IncrCounter(ctx context.Context, name string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key("ctr", name)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr counter %s: %w", name, err)
	}
	return n, nil
}

func (r *Redis) SetCounter(ctx context.Context, name string, value int64) error {
	return r.client.Set(ctx, r.key("ctr", name), value, 0).Err()
}

func (r *Redis) Members(ctx context.Context, set string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.key("set", set)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", set, err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *Redis) AddMembers(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.SAdd(ctx, r.key("set", set), args...).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key("kv", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key("kv", key), value, 0).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Compile-time interface check.
var _ Store = (*Redis)(nil)
