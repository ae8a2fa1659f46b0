package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tolibear/evolving-site-sub001/internal/infra/config"
)

const (
	keyspaceRoot       = "board"
	defaultPoolSize    = 10
	healthCheckTimeout = 2 * time.Second
)

// Keyspace returns the key prefix reserved for one use of the shared Redis,
// such as handshake replay markers or rate limit windows.
func Keyspace(use string) string {
	return keyspaceRoot + ":" + strings.Trim(use, ":")
}

// Client owns the Redis pool shared by the handshake marker store, the rate
// limiter and the feature event claimer.
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient connects and verifies the pool before any login can depend on it.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	client := redis.NewClient(options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", client.Options().PoolSize),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
		zap.String("handshake_prefix", cfg.HandshakePrefix),
	)

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// options keeps timeouts short: a slow Redis must fail a login quickly rather
// than hold the callback open.
func options(cfg config.RedisSettings) *redis.Options {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	opts := &redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        poolSize,
		MinIdleConns:    min(2, poolSize),
		MaxRetries:      3,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Client returns the underlying pool for the repositories built on it.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck pings Redis within a bounded budget so readiness never hangs.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.logger.Info("closing redis pool")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
