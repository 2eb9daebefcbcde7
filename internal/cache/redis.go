package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Client is the shared Redis handle; nil until InitRedis succeeds. The
// mapping cache degrades to in-memory when Redis is unavailable.
var Client *redis.Client

// InitRedis connects and verifies the server with a bounded ping.
func InitRedis(addr, password string, db int) error {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	Client = c
	logrus.WithField("addr", addr).Info("Redis connected")
	return nil
}

// Close releases the Redis connection.
func Close() error {
	if Client == nil {
		return nil
	}
	return Client.Close()
}
