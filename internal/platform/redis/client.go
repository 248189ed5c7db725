// Package redis dials the shared Redis used by the scan rate limiter.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/internal/platform/config"
)

// Client is the go-redis client plus the health probe the readiness
// endpoint wants.
type Client struct {
	*redis.Client
}

// New dials Redis per the configuration and verifies the connection before
// handing it out. A blank URL is not an error: it returns a nil client and
// callers fall back to in-memory stores.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	wait := cfg.DialTimeout
	if wait <= 0 {
		wait = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether Redis still answers. Used by the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
