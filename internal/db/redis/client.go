// Package redis provides Redis database connectivity and operations.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/infinitune/roomserver/internal/config"
	"github.com/infinitune/roomserver/internal/utils"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "roomserver"

// Client wraps the Redis client with app-specific functionality.
type Client struct {
	client *redis.Client
	logger *utils.Logger
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(cfg *config.Config, logger *utils.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Database.Redis.Address,
		Password:    cfg.Database.Redis.Password,
		DB:          cfg.Database.Redis.Database,
		DialTimeout: cfg.Database.Redis.DialTimeout,
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to connect to Redis", err, "addr", opts.Addr)
		return nil, err
	}

	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis connection", err)
		return err
	}
	c.logger.Info("Closed Redis connection")
	return nil
}

// Client returns the underlying Redis client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// Pipeline returns a new pipeline.
func (c *Client) Pipeline() redis.Pipeliner {
	return c.client.Pipeline()
}

// Del deletes keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Expire sets a key's time to live.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

// Logger returns the logger used by the client.
func (c *Client) Logger() *utils.Logger {
	return c.logger
}

// FormatKey builds a namespaced key.
func FormatKey(parts ...string) string {
	key := KeyPrefix
	for _, p := range parts {
		key = fmt.Sprintf("%s:%s", key, p)
	}
	return key
}
