package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisSender publishes messages on a Redis channel for a separate push
// worker to deliver. A successful publish counts every token as sent.
type RedisSender struct {
	rdb     *redis.Client
	channel string
}

// NewRedisSender connects to the Redis server at url.
func NewRedisSender(url, channel string) (*RedisSender, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("push.NewRedisSender: %w", err)
	}
	return &RedisSender{rdb: redis.NewClient(opt), channel: channel}, nil
}

func (s *RedisSender) Send(ctx context.Context, msg Message) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	if err != nil {
		return Result{FailureCount: len(msg.Tokens)}, fmt.Errorf("push.RedisSender.Send: encode: %w", err)
	}
	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		return Result{FailureCount: len(msg.Tokens)}, fmt.Errorf("push.RedisSender.Send: %w", err)
	}
	return Result{SuccessCount: len(msg.Tokens)}, nil
}

// Close releases the Redis connection pool.
func (s *RedisSender) Close() error {
	return s.rdb.Close()
}
