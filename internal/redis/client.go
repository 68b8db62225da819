package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mossy-p/webrtc-matchmaker/config"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Connect opens a Redis client and verifies it with a PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     Addr(cfg),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", Addr(cfg), err)
	}

	return client, nil
}

// Addr joins the configured host and port.
func Addr(cfg config.RedisConfig) string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}
