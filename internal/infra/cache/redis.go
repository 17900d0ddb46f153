package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/John-Robertt/movieingest/internal/provider"
)

const redisKeyPrefix = "movieingest:detail:"

// kv 是 Redis 后端用到的最小命令集合；测试可替换为内存实现。
type kv interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

type goRedis struct{ rdb *redis.Client }

func (g goRedis) Get(ctx context.Context, key string) (string, error) {
	return g.rdb.Get(ctx, key).Result()
}

func (g goRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.rdb.Set(ctx, key, value, ttl).Err()
}

func (g goRedis) Ping(ctx context.Context) error { return g.rdb.Ping(ctx).Err() }

func (g goRedis) Close() error { return g.rdb.Close() }

// RedisOptions 对应配置中的 cache.redis。
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Redis 把 payload 存为 movieingest:detail:<source>:<id>，值为 JSON 信封。
type Redis struct {
	client   kv
	TTL      time.Duration
	ReadOnly bool
}

type envelope struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// NewRedis 连接 Redis 并用 PING 校验（5s 超时）。
func NewRedis(opts RedisOptions, ttl time.Duration, readOnly bool) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	c := newRedis(goRedis{rdb: rdb}, ttl, readOnly)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

func newRedis(client kv, ttl time.Duration, readOnly bool) *Redis {
	return &Redis{client: client, TTL: ttl, ReadOnly: readOnly}
}

func (r *Redis) Get(ctx context.Context, source, id string) (provider.RawDetail, bool, error) {
	s, id, err := cleanKey(source, id)
	if err != nil {
		return provider.RawDetail{}, false, err
	}
	data, err := r.client.Get(ctx, redisKey(s, id))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return provider.RawDetail{}, false, nil
		}
		return provider.RawDetail{}, false, fmt.Errorf("redis get: %w", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		// 损坏的条目按未命中处理，下次 Put 会覆盖。
		return provider.RawDetail{}, false, nil
	}
	return provider.RawDetail{Source: s, ID: id, URL: env.URL, ContentType: env.ContentType, Body: env.Body}, true, nil
}

func (r *Redis) Put(ctx context.Context, raw provider.RawDetail) error {
	if r.ReadOnly {
		return ErrReadOnly
	}
	s, id, err := cleanKey(raw.Source, raw.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{URL: raw.URL, ContentType: raw.ContentType, Body: raw.Body})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(s, id), data, r.TTL); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }

func redisKey(source, id string) string { return redisKeyPrefix + source + ":" + id }
