// Package cache opens the Redis client shared by the closing lock and the
// job queue inspector.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Options tunes the client. Zero values keep go-redis defaults.
type Options struct {
	PoolSize   int
	ClientName string
}

// New connects to addr and pings it.
func New(ctx context.Context, addr string, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		PoolSize:   opts.PoolSize,
		ClientName: opts.ClientName,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addr, err)
	}

	return client, nil
}
