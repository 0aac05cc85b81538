package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisConnectAttempts = 3

// OpenRedis parses a redis:// or rediss:// URL, applies opTimeout to reads, writes and dials, and
// pings the server, retrying a few times while it starts up. Caller must Close.
func OpenRedis(ctx context.Context, rawURL string, opTimeout time.Duration) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("db: empty redis URL")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse redis url: %w", err)
	}
	if opTimeout > 0 {
		opts.DialTimeout = opTimeout
		opts.ReadTimeout = opTimeout
		opts.WriteTimeout = opTimeout
	}
	client := redis.NewClient(opts)
	var pingErr error
	for attempt := 1; attempt <= redisConnectAttempts; attempt++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			return client, nil
		}
		log.Printf("db: redis ping attempt %d/%d: %v", attempt, redisConnectAttempts, pingErr)
		if attempt == redisConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("db: redis unreachable: %w", pingErr)
}
