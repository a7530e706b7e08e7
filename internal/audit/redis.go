package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends JSON records to one list per stream and trading day.
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires each day's lists; zero keeps them forever.
	TTL time.Duration
}

func NewRedisSink(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return newRedisSink(client, opts.Prefix, opts.TTL), nil
}

func newRedisSink(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "bandbot"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) SignalKey(day string) string {
	return fmt.Sprintf("%s:signals:%s", s.prefix, day)
}

func (s *RedisSink) OrderKey(day string) string {
	return fmt.Sprintf("%s:orders:%s", s.prefix, day)
}

func (s *RedisSink) AppendSignal(ctx context.Context, signal Signal) error {
	signal.Day = dayOf(signal.Day, signal.Timestamp)
	return s.push(ctx, s.SignalKey(signal.Day), signal)
}

func (s *RedisSink) AppendOrder(ctx context.Context, order Order) error {
	order.Day = dayOf(order.Day, order.Timestamp)
	return s.push(ctx, s.OrderKey(order.Day), order)
}

func (s *RedisSink) push(ctx context.Context, key string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
